package step

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/stepforge/flowrt/budget"
	"github.com/stepforge/flowrt/cache"
	"github.com/stepforge/flowrt/contract"
	"github.com/stepforge/flowrt/core"
	"github.com/stepforge/flowrt/flowctx"
	"github.com/stepforge/flowrt/prompt"
	"github.com/stepforge/flowrt/provider"
	"github.com/stepforge/flowrt/runtimeconfig"
	"github.com/stepforge/flowrt/trace"
)

// Executor runs Specs through the precheck -> lookup -> compile -> call ->
// parse -> postcheck state machine.
type Executor struct {
	Registry    *contract.Registry
	Trace       *trace.Log
	GlobalCache cache.Store
	Provider    provider.Client // overrides runtimeconfig's provider_client when set
	Logger      core.Logger
	Telemetry   core.Telemetry
}

// NewExecutor builds an Executor. traceLog and globalCache may be nil; a
// nil globalCache means the `global` cache policy degrades to an
// in-memory, process-local store.
func NewExecutor(registry *contract.Registry, traceLog *trace.Log, globalCache cache.Store) *Executor {
	if traceLog == nil {
		traceLog = trace.New(nil)
	}
	if globalCache == nil {
		globalCache = cache.NewInMemory()
	}
	return &Executor{
		Registry:    registry,
		Trace:       traceLog,
		GlobalCache: globalCache,
		Logger:      core.NoOpLogger{},
		Telemetry:   core.NoOpTelemetry{},
	}
}

// Register binds spec's contract into the registry, wrapping it per §4.4
// point 5 if its top-level shape is a primitive, and stashes the resulting
// descriptor on the spec for cache-key and trace use.
func Register(registry *contract.Registry, spec *Spec) error {
	d, err := registry.Register(spec.Name, spec.wireSchema())
	if err != nil {
		return err
	}
	spec.ContractDescriptor = d
	return nil
}

type attemptFailure struct {
	stage   string // "call" | "parse" | "postcheck"
	reason  string
	raw     string
}

// Execute runs one step invocation to completion: precheck, a possible
// cache hit, and otherwise the compile/call/parse/postcheck retry loop.
func (e *Executor) Execute(ctx context.Context, spec *Spec, inputs map[string]interface{}) (interface{}, error) {
	start := time.Now()

	if err := e.precheck(spec, inputs); err != nil {
		return nil, err
	}

	fc, inFlow := flowctx.From(ctx)
	var flowID string
	if inFlow {
		flowID = fc.ID
	}

	cacheStore, cacheKey, err := e.cacheTarget(ctx, spec, inputs, fc, inFlow)
	if err != nil {
		return nil, err
	}
	if cacheStore != nil {
		if output, ok := e.lookupCache(ctx, cacheStore, cacheKey, spec); ok {
			e.Trace.Append(trace.Record{
				StepQualname: spec.Name,
				ModelID:      e.effectiveModel(spec),
				Inputs:       inputs,
				ContractHash: descriptorHash(spec),
				Attempts:     0,
				Output:       output,
				DurationMS:   0,
				CacheHit:     true,
				FlowID:       flowID,
			})
			return output, nil
		}
	}

	budgets := e.resolveBudgets(spec, fc)

	client := e.Provider
	if client == nil {
		client = runtimeconfig.Get().ProviderClient
	}
	if client == nil {
		return nil, &core.CompileError{Location: spec.Name, Reason: "no provider client configured"}
	}

	var (
		retryFeedback []string
		attempt       int
		lastOutput    interface{}
		lastCompile   *prompt.Compiled
		lastResp      *provider.Response
		final         attemptFailure
	)

	ceiling := spec.retryCeiling()

	for {
		if budgetsExhausted(budgets) {
			return nil, e.fail(spec, inputs, flowID, start, attempt, retryFeedback,
				&core.BudgetExceeded{Step: spec.Name, Reason: "exhausted before attempt"})
		}
		attempt++

		compiled, err := e.compile(spec, inputs, retryFeedback, client)
		if err != nil {
			return nil, err
		}
		lastCompile = compiled

		timeout := minDuration(budgets)
		callCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		resp, callErr := client.Call(callCtx, provider.Request{
			ModelID:     e.effectiveModel(spec),
			Messages:    compiled.Messages,
			Tool:        buildToolDescriptor(spec),
			ForcedName:  spec.Name,
			Temperature: spec.Temperature,
			Timeout:     timeout,
		})
		if cancel != nil {
			cancel()
		}

		if callErr != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return nil, e.fail(spec, inputs, flowID, start, attempt, retryFeedback,
					&core.BudgetExceeded{Step: spec.Name, MS: budgetMSCeiling(budgets), Reason: "provider call timed out"})
			}
			final = attemptFailure{stage: "call", reason: callErr.Error()}
			retryFeedback = append(retryFeedback, final.reason)
			if retryAllowed(attempt, ceiling, budgets) {
				continue
			}
			if budgetsExhausted(budgets) {
				return nil, e.fail(spec, inputs, flowID, start, attempt, retryFeedback,
					&core.BudgetExceeded{Step: spec.Name, MS: budgetMSCeiling(budgets), USD: budgets.spentUSD(), Reason: "exhausted after failed call"})
			}
			return nil, e.fail(spec, inputs, flowID, start, attempt, retryFeedback,
				&core.ParseFailure{Step: spec.Name, Message: final.reason})
		}
		lastResp = resp

		if cost := client.Cost(resp); cost != nil {
			budgets.addCost(*cost)
		}

		output, raw, parseErr := e.parse(spec, resp)
		if parseErr != nil {
			final = attemptFailure{stage: "parse", reason: parseErr.Error(), raw: raw}
			retryFeedback = append(retryFeedback, final.reason)
			if retryAllowed(attempt, ceiling, budgets) {
				continue
			}
			if budgetsExhausted(budgets) {
				return nil, e.fail(spec, inputs, flowID, start, attempt, retryFeedback,
					&core.BudgetExceeded{Step: spec.Name, MS: budgetMSCeiling(budgets), USD: budgets.spentUSD(), Reason: "exhausted after parse failure"})
			}
			return nil, e.fail(spec, inputs, flowID, start, attempt, retryFeedback,
				&core.ParseFailure{Step: spec.Name, Raw: raw, Message: final.reason})
		}

		violations := e.postcheck(spec, output)
		if len(violations) > 0 {
			final = attemptFailure{stage: "postcheck"}
			retryFeedback = append(retryFeedback, violations...)
			if retryAllowed(attempt, ceiling, budgets) {
				continue
			}
			if budgetsExhausted(budgets) {
				return nil, e.fail(spec, inputs, flowID, start, attempt, retryFeedback,
					&core.BudgetExceeded{Step: spec.Name, MS: budgetMSCeiling(budgets), USD: budgets.spentUSD(), Reason: "exhausted after postcondition failure"})
			}
			return nil, e.fail(spec, inputs, flowID, start, attempt, retryFeedback,
				&core.PostconditionFailed{Step: spec.Name, Violations: violations, RetryHistory: retryFeedback})
		}

		lastOutput = output
		break
	}

	if err := e.checkStability(ctx, spec, inputs, client, lastOutput); err != nil {
		return nil, err
	}

	durationMS := time.Since(start).Milliseconds()
	var costUSD *float64
	if budgets.spentUSD() > 0 {
		v := budgets.spentUSD()
		costUSD = &v
	}
	var providerSystem string
	var inputTokens, outputTokens *int
	if lastResp != nil {
		providerSystem = lastResp.ProviderSystem
		if lastResp.InputTokens > 0 {
			v := lastResp.InputTokens
			inputTokens = &v
		}
		if lastResp.OutputTokens > 0 {
			v := lastResp.OutputTokens
			outputTokens = &v
		}
	}

	e.Trace.Append(trace.Record{
		StepQualname:   spec.Name,
		ModelID:        e.effectiveModel(spec),
		Inputs:         inputs,
		PromptHash:     lastCompile.Hash,
		ContractHash:   descriptorHash(spec),
		Attempts:       attempt,
		Output:         lastOutput,
		DurationMS:     durationMS,
		CostUSD:        costUSD,
		CacheHit:       false,
		RetryReasons:   retryFeedback,
		FlowID:         flowID,
		ProviderSystem: providerSystem,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
	})

	if cacheStore != nil {
		if data, err := json.Marshal(lastOutput); err == nil {
			_ = cacheStore.Set(ctx, cacheKey, data)
		}
	}

	return lastOutput, nil
}

func (e *Executor) precheck(spec *Spec, inputs map[string]interface{}) error {
	for _, p := range spec.Preconditions {
		ok, err := p.Check(inputs)
		if err != nil || !ok {
			return &core.PreconditionFailed{Step: spec.Name, Condition: p.Label}
		}
	}
	return nil
}

func (e *Executor) cacheTarget(ctx context.Context, spec *Spec, inputs map[string]interface{}, fc *flowctx.FlowContext, inFlow bool) (cache.Store, string, error) {
	if spec.CachePolicy == CacheNone || spec.CachePolicy == "" {
		return nil, "", nil
	}
	inputHash, err := hashInputs(inputs)
	if err != nil {
		return nil, "", &core.CompileError{Location: spec.Name, Reason: "hashing inputs: " + err.Error()}
	}
	switch spec.CachePolicy {
	case CacheSession:
		return flowctx.SessionFor(ctx), fmt.Sprintf("%s:%s", spec.Name, inputHash), nil
	case CacheGlobal:
		return e.GlobalCache, fmt.Sprintf("%s:%s:%s", spec.Name, inputHash, descriptorHash(spec)), nil
	default:
		return nil, "", nil
	}
}

func (e *Executor) lookupCache(ctx context.Context, store cache.Store, key string, spec *Spec) (interface{}, bool) {
	data, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var output interface{}
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, false
	}
	if violations := e.postcheck(spec, output); len(violations) > 0 {
		return nil, false
	}
	return output, true
}

func (e *Executor) compile(spec *Spec, inputs map[string]interface{}, retryFeedback []string, client provider.Client) (*prompt.Compiled, error) {
	req := prompt.Request{
		Intent:        spec.Intent,
		Context:       spec.Context,
		RetryFeedback: retryFeedback,
		CacheCapable:  true,
	}
	opaque := make(map[string]bool, len(spec.Params))
	for _, p := range spec.Params {
		opaque[p.Name] = p.Opaque
	}
	// Declared parameters come first, in declaration order; any input not
	// declared as a parameter follows, sorted by name.
	names := make([]string, 0, len(inputs))
	declared := make(map[string]bool, len(spec.Params))
	for _, p := range spec.Params {
		if _, ok := inputs[p.Name]; ok && !declared[p.Name] {
			names = append(names, p.Name)
		}
		declared[p.Name] = true
	}
	var rest []string
	for name := range inputs {
		if !declared[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)
	for _, name := range names {
		req.Inputs = append(req.Inputs, prompt.Input{Name: name, Value: inputs[name], Opaque: opaque[name]})
	}
	return prompt.Compile(req)
}

func (e *Executor) parse(spec *Spec, resp *provider.Response) (interface{}, string, error) {
	raw, ok := resp.FirstArguments()
	if !ok {
		return nil, "", fmt.Errorf("provider response carried no tool call")
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, raw, fmt.Errorf("invalid JSON in provider output: %w", err)
	}
	wire := spec.wireSchema()
	if err := contract.Validate(wire, decoded); err != nil {
		return nil, raw, fmt.Errorf("output does not satisfy contract: %w", err)
	}
	if spec.isPrimitive() {
		obj, _ := decoded.(map[string]interface{})
		return obj["value"], raw, nil
	}
	return decoded, raw, nil
}

func (e *Executor) postcheck(spec *Spec, output interface{}) []string {
	var violations []string
	for _, p := range spec.Postconditions {
		ok, err := p.Check(output)
		if err != nil {
			violations = append(violations, fmt.Sprintf("%s: %s", p.Label, err.Error()))
			continue
		}
		if !ok {
			violations = append(violations, p.Label)
		}
	}
	return violations
}

func (e *Executor) fail(spec *Spec, inputs map[string]interface{}, flowID string, start time.Time, attempt int, retryFeedback []string, err error) error {
	e.Trace.Append(trace.Record{
		StepQualname: spec.Name,
		ModelID:      e.effectiveModel(spec),
		Inputs:       inputs,
		ContractHash: descriptorHash(spec),
		Attempts:     attempt,
		DurationMS:   time.Since(start).Milliseconds(),
		RetryReasons: retryFeedback,
		FlowID:       flowID,
	})
	return err
}

func (e *Executor) effectiveModel(spec *Spec) string {
	if spec.ModelID != "" {
		return spec.ModelID
	}
	return runtimeconfig.Get().DefaultModel
}

func descriptorHash(spec *Spec) string {
	if spec.ContractDescriptor == nil {
		return ""
	}
	return spec.ContractDescriptor.Hash
}

func buildToolDescriptor(spec *Spec) provider.ToolDescriptor {
	return provider.ToolDescriptor{
		Name:        spec.Name,
		Description: spec.Intent,
		Parameters:  spec.wireSchema().JSONSchema(),
	}
}

func retryAllowed(attempt, ceiling int, b *budgetSet) bool {
	return attempt < ceiling && !budgetsExhausted(b)
}

func minDuration(b *budgetSet) time.Duration {
	return b.remaining()
}

func budgetsExhausted(b *budgetSet) bool {
	return b.exhausted()
}

func budgetMSCeiling(b *budgetSet) int64 {
	return b.msCeiling()
}

// budgetSet is the set of budgets whose remaining time/cost jointly bound
// a step invocation: the ambient flow budget (if any) and the step's own
// declared budget (if any). Both are independently tracked per §4.3
// ("parent flow budgets are inherited... a child's explicit budget
// overrides"), but cost is charged against every budget in scope so a
// flow-wide ceiling is still honored even when a step declares its own.
type budgetSet struct {
	budgets []*budget.Budget
}

func (e *Executor) resolveBudgets(spec *Spec, fc *flowctx.FlowContext) *budgetSet {
	var bs []*budget.Budget
	if fc != nil {
		bs = append(bs, fc.Budget)
	}
	if spec.BudgetMS != nil || spec.BudgetUSD != nil {
		b := budget.New(spec.BudgetMS, spec.BudgetUSD)
		b.Start()
		bs = append(bs, b)
	}
	if len(bs) == 0 {
		b := budget.New(nil, nil)
		b.Start()
		bs = append(bs, b)
	}
	return &budgetSet{budgets: bs}
}

func (b *budgetSet) addCost(usd float64) {
	for _, bud := range b.budgets {
		bud.AddCost(usd)
	}
}

func (b *budgetSet) spentUSD() float64 {
	var max float64
	for _, bud := range b.budgets {
		if v := bud.SpentUSD(); v > max {
			max = v
		}
	}
	return max
}

func (b *budgetSet) remaining() time.Duration {
	min := b.budgets[0].RemainingDuration()
	for _, bud := range b.budgets[1:] {
		if d := bud.RemainingDuration(); d < min {
			min = d
		}
	}
	return min
}

func (b *budgetSet) exhausted() bool {
	for _, bud := range b.budgets {
		if bud.IsTimeExceeded() || bud.IsCostExceeded() {
			return true
		}
	}
	return false
}

func (b *budgetSet) msCeiling() int64 {
	for _, bud := range b.budgets {
		if c := bud.MSCeiling(); c != nil {
			return *c
		}
	}
	return 0
}
