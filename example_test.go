package weave_test

import (
	"context"
	"fmt"

	"github.com/tessellate-ai/weave"
)

func ExampleEngine_Start() {
	engine := weave.NewEngine(weave.EngineOptions{
		Functions: map[string]weave.NamedFunction{
			"greet": func(ctx context.Context, input map[string]any) (map[string]any, error) {
				return map[string]any{"greeting": fmt.Sprintf("hello, %v", input["name"])}, nil
			},
		},
	})

	graph, err := weave.LoadString(`
workflow_id: wf-greeter
name: greeter
nodes:
  - id: greet
    name: Greet
    role: function
    is_start: true
    is_output: true
    config:
      function_name: greet
`)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	run, err := engine.Start(ctx, graph, map[string]any{"name": "Ada"})
	if err != nil {
		panic(err)
	}
	run, err = engine.Wait(ctx, run.ID)
	if err != nil {
		panic(err)
	}
	fmt.Println(run.Status)
	fmt.Println(run.Output["greeting"])
	// Output:
	// completed
	// hello, Ada
}
