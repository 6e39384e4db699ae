package rlmengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/rlmcore/docstore"
	"github.com/smallnest/rlmcore/llmclient"
	"github.com/smallnest/rlmcore/promptasm"
	"github.com/smallnest/rlmcore/rlmerrors"
	"github.com/smallnest/rlmcore/rlmlog"
	"github.com/smallnest/rlmcore/rlmscript"
	"github.com/smallnest/rlmcore/sandbox"
)

// DefaultQuestionDeadline and DefaultScriptDeadline are the per-question
// and per-script wall-clock budgets of spec §5.
const (
	DefaultQuestionDeadline = 5 * time.Minute
	DefaultScriptDeadline   = 20 * time.Second
)

// Engine is the RlmEngine of spec §4.6.
type Engine struct {
	docs      docstore.Store
	primary   *llmclient.Client
	sub       *llmclient.Client
	assembler *promptasm.Assembler
	log       rlmlog.Logger
	opts      Options
}

// New creates an Engine. opts' zero fields are filled with spec defaults.
func New(docs docstore.Store, primary, sub *llmclient.Client, log rlmlog.Logger, opts Options) *Engine {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 15
	}
	if opts.MinCodeExecutions <= 0 {
		opts.MinCodeExecutions = 3
	}
	if opts.MinAnswerLen <= 0 {
		opts.MinAnswerLen = 150
	}
	if opts.ParallelLoops <= 0 {
		opts.ParallelLoops = 1
	}
	if opts.ScriptDeadline <= 0 {
		opts.ScriptDeadline = DefaultScriptDeadline
	}
	if opts.QuestionDeadline <= 0 {
		opts.QuestionDeadline = DefaultQuestionDeadline
	}

	return &Engine{
		docs:      docs,
		primary:   primary,
		sub:       sub,
		assembler: promptasm.New(),
		log:       log,
		opts:      opts,
	}
}

// Ask answers question over topic, per spec §4.6's dialogue protocol.
func (e *Engine) Ask(ctx context.Context, topic, question string) (*AskResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.QuestionDeadline)
	defer cancel()

	docIDs, err := e.docs.ListByLabel(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("rlmengine: listing documents for %q: %w", topic, err)
	}
	if len(docIDs) == 0 {
		return nil, &rlmerrors.NoDocumentsForTopic{Label: topic}
	}

	documents := make([]docstore.Document, 0, len(docIDs))
	for _, id := range docIDs {
		doc, err := e.docs.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("rlmengine: loading document %q: %w", id, err)
		}
		documents = append(documents, *doc)
	}

	systemPrompt := e.assembler.BuildSystemPrompt(documents)
	access := &topicDocAccess{store: e.docs, docs: documents}
	subModel := &subModelAdapter{client: e.sub}

	var result loopResult
	var loopErr error

	if e.opts.ParallelLoops <= 1 {
		result, loopErr = e.runLoop(ctx, systemPrompt, question, access, subModel, 0)
	} else {
		result, loopErr = e.runParallelLoops(ctx, systemPrompt, question, access, subModel)
	}

	if ctx.Err() != nil && (loopErr == nil || errors.Is(ctx.Err(), context.Canceled)) {
		return nil, &rlmerrors.Cancelled{Reason: ctx.Err().Error()}
	}

	answer := result.answer
	truncated := result.truncated
	if answer == "" {
		answer = result.lastTurn
		truncated = true
	}

	citedURLs := extractCitations(answer)

	qa := docstore.QaRecord{
		ID:              uuid.NewString(),
		Topic:           topic,
		Question:        question,
		Answer:          answer,
		CitedURLs:       citedURLs,
		Iterations:      result.iterations,
		ScriptCalls:     result.scriptCalls,
		Truncated:       truncated,
		CandidateHashes: result.candidateHashes,
	}
	if err := e.docs.RecordQA(ctx, qa); err != nil {
		e.log.Warn("rlmengine: recording QaRecord for topic %q: %v", topic, err)
	}

	askResult := &AskResult{
		Answer:          answer,
		CitedURLs:       citedURLs,
		Iterations:      result.iterations,
		ScriptCalls:     result.scriptCalls,
		Truncated:       truncated,
		CandidateHashes: result.candidateHashes,
	}

	if loopErr != nil {
		return askResult, loopErr
	}
	if truncated {
		return askResult, &rlmerrors.LoopExhausted{Iterations: result.iterations}
	}
	return askResult, nil
}

// runLoop drives a single bounded dialogue, per spec §4.6 step 4. seed
// diversifies the system prompt across parallel loops (nonce-only; no
// actual RNG seed is threaded into the LLM call itself).
func (e *Engine) runLoop(ctx context.Context, systemPrompt, question string, access *topicDocAccess, subModel *subModelAdapter, seed int) (loopResult, error) {
	prompt := systemPrompt
	if seed > 0 {
		prompt = fmt.Sprintf("%s\n\n(reasoning attempt #%d)", systemPrompt, seed)
	}

	dialogue := []llmclient.Message{
		{Role: "system", Content: prompt},
		{Role: "user", Content: question},
	}

	executor := sandbox.New(access, subModel, e.opts.ScriptDeadline)

	var res loopResult
	for res.iterations = 0; res.iterations < e.opts.MaxIterations; res.iterations++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		reply, err := e.primary.Complete(ctx, dialogue)
		if err != nil {
			return res, err
		}
		dialogue = append(dialogue, llmclient.Message{Role: "assistant", Content: reply})
		res.lastTurn = reply

		parsed, parseErr := rlmscript.Parse(reply)
		if parseErr != nil {
			dialogue = append(dialogue, llmclient.Message{Role: "tool", Content: fmt.Sprintf("Parse error: %v. Close the fenced repl block before continuing.", parseErr)})
			continue
		}

		switch parsed.Kind {
		case rlmscript.KindScript:
			execResult, err := executor.Evaluate(ctx, parsed.ScriptBody)
			if err != nil {
				return res, err
			}
			res.scriptCalls++
			dialogue = append(dialogue, llmclient.Message{Role: "tool", Content: toolTurnBody(execResult)})

		case rlmscript.KindFinal:
			if res.scriptCalls >= e.opts.MinCodeExecutions && len([]rune(parsed.FinalBody)) >= e.opts.MinAnswerLen {
				res.answer = parsed.FinalBody
				res.iterations++
				return res, nil
			}
			dialogue = append(dialogue, llmclient.Message{Role: "tool", Content: nudgeMessage(res.scriptCalls, e.opts.MinCodeExecutions, len([]rune(parsed.FinalBody)), e.opts.MinAnswerLen)})

		default: // KindNeither
			dialogue = append(dialogue, llmclient.Message{Role: "tool", Content: "Reply with either a fenced ```repl block or a FINAL(...) terminal. Plain prose is not a valid turn."})
		}
	}

	res.truncated = true
	return res, nil
}

func toolTurnBody(res sandbox.Result) string {
	if res.Error == "" {
		return res.Stdout
	}
	if res.Stdout == "" {
		return fmt.Sprintf("error: %s", res.Error)
	}
	return fmt.Sprintf("%s\nerror: %s", res.Stdout, res.Error)
}

func nudgeMessage(scriptCalls, minCalls, answerLen, minLen int) string {
	if scriptCalls < minCalls {
		return fmt.Sprintf("FINAL rejected: only %d script executions so far, need at least %d. Gather more evidence before concluding.", scriptCalls, minCalls)
	}
	return fmt.Sprintf("FINAL rejected: answer is %d characters, need at least %d. Provide a fuller answer.", answerLen, minLen)
}

// runParallelLoops runs ParallelLoops independent dialogues concurrently
// and asks the primary model to reduce them to one answer, per spec
// §4.6's "Parallel loops" section.
func (e *Engine) runParallelLoops(ctx context.Context, systemPrompt, question string, access *topicDocAccess, subModel *subModelAdapter) (loopResult, error) {
	n := e.opts.ParallelLoops
	results := make([]loopResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.runLoop(ctx, systemPrompt, question, access, subModel, i+1)
		}(i)
	}
	wg.Wait()

	var candidates []loopResult
	for i, r := range results {
		if errs[i] != nil {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		for _, err := range errs {
			if err != nil {
				return loopResult{}, err
			}
		}
		return loopResult{truncated: true}, nil
	}

	hashes := candidateHashes(candidates)
	if len(candidates) == 1 {
		res := candidates[0]
		res.candidateHashes = hashes
		return res, nil
	}

	result, err := e.reduce(ctx, question, candidates)
	result.candidateHashes = hashes
	return result, err
}

// candidateHashes returns a sha256 hex digest of every candidate's
// answer (or best-effort lastTurn, if it never reached FINAL), in
// candidates' order, per spec §8 scenario 5.
func candidateHashes(candidates []loopResult) []string {
	hashes := make([]string, len(candidates))
	for i, c := range candidates {
		answer := c.answer
		if answer == "" {
			answer = c.lastTurn
		}
		sum := sha256.Sum256([]byte(answer))
		hashes[i] = hex.EncodeToString(sum[:])
	}
	return hashes
}

// reduce issues a final turn to the primary model asking it to pick or
// synthesize the best answer among candidates, per spec §4.6.
func (e *Engine) reduce(ctx context.Context, question string, candidates []loopResult) (loopResult, error) {
	prompt := fmt.Sprintf("Multiple independent reasoning attempts answered the question %q. Pick or synthesize the single best answer, preserving citations. Reply with FINAL(your answer here).\n\n", question)
	for i, c := range candidates {
		answer := c.answer
		if answer == "" {
			answer = c.lastTurn
		}
		prompt += fmt.Sprintf("Candidate %d (script_calls=%d, iterations=%d):\n%s\n\n", i+1, c.scriptCalls, c.iterations, answer)
	}

	reply, err := e.primary.Complete(ctx, []llmclient.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return candidates[0], nil
	}

	parsed, parseErr := rlmscript.Parse(reply)
	if parseErr == nil && parsed.Kind == rlmscript.KindFinal {
		best := mergeStats(candidates)
		best.answer = parsed.FinalBody
		return best, nil
	}

	return candidates[0], nil
}

func mergeStats(candidates []loopResult) loopResult {
	var merged loopResult
	for _, c := range candidates {
		merged.scriptCalls += c.scriptCalls
		if c.iterations > merged.iterations {
			merged.iterations = c.iterations
		}
	}
	return merged
}
