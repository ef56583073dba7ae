package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/engine"
	"github.com/meikuraledutech/flow/internal/xjson"
	"github.com/meikuraledutech/flow/local"
	"github.com/meikuraledutech/flow/media"
	"github.com/meikuraledutech/flow/memory"
	"github.com/meikuraledutech/flow/task"
)

// echoGenerator stands in for Gemini when no API key is set.
type echoGenerator struct{}

func (echoGenerator) GenerateText(_ context.Context, model string, p media.Prompt) (string, error) {
	return fmt.Sprintf("[%s] %s", model, strings.ToUpper(p.UserMessage)), nil
}

func main() {
	ctx := context.Background()

	var gen media.TextGenerator = echoGenerator{}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		g, err := media.NewGemini(ctx, key)
		if err != nil {
			log.Fatalf("gemini: %v", err)
		}
		gen = g
	}

	// Run tasks in-process behind the same Backend interface trigger.dev serves.
	backend := local.New(local.DefaultConfig(), nil)
	defer backend.Close()
	(&media.Tasks{LLM: media.NewLLM(gen, nil)}).Register(backend)

	store := memory.New()
	e := engine.NewWithBackend(backend, task.DefaultPollPolicy(), store)

	wf := &flow.Workflow{
		ID: "demo",
		Nodes: []flow.Node{
			flow.NewNode("system", flow.TextData{Label: "Answer in one sentence."}),
			flow.NewNode("question", flow.TextData{Label: "What is a directed acyclic graph?"}),
			flow.NewNode("answer", flow.LLMData{Label: "Answer"}),
			flow.NewNode("shorter", flow.LLMData{Label: "Shorten", SystemPrompt: "Rewrite in five words."}),
		},
		Edges: []flow.Edge{
			{Source: "system", Target: "answer", TargetHandle: "system"},
			{Source: "question", Target: "answer", TargetHandle: "user"},
			{Source: "answer", Target: "shorter", TargetHandle: "user"},
		},
	}
	if err := store.SaveWorkflow(ctx, wf); err != nil {
		log.Fatalf("save workflow: %v", err)
	}
	fmt.Println("workflow saved")

	res, err := e.Run(ctx, engine.Request{
		WorkflowID: wf.ID,
		Scope:      flow.ScopeFull,
		Nodes:      wf.Nodes,
		Edges:      wf.Edges,
	})
	if err != nil {
		log.Fatalf("run: %v", err)
	}
	fmt.Printf("\nrun %s finished %s:\n", res.RunID, res.Status)
	printJSON(res.Outputs)

	// A SINGLE run executes only the named node, nothing downstream.
	res, err = e.Run(ctx, engine.Request{
		WorkflowID: wf.ID,
		Scope:      flow.ScopeSingle,
		Nodes:      wf.Nodes,
		Edges:      wf.Edges,
		Targets:    []string{"question"},
	})
	if err != nil {
		log.Fatalf("single run: %v", err)
	}
	fmt.Printf("\nsingle run %s finished %s:\n", res.RunID, res.Status)
	printJSON(res.Outputs)

	runs, err := store.GetRuns(ctx, wf.ID)
	if err != nil {
		log.Fatalf("history: %v", err)
	}
	fmt.Printf("\nhistory (%d runs):\n", len(runs))
	printJSON(runs)

	if err := store.ClearRuns(ctx, wf.ID); err != nil {
		log.Fatalf("clear history: %v", err)
	}
	fmt.Println("\nhistory cleared")
}

func printJSON(v any) {
	out, _ := xjson.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
