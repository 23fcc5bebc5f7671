package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/irrev-systems/irrev/pkg/content"
)

// wasmPlan and wasmResult carry whatever JSON a WASM module's compute_plan
// and execute calls return, wrapped just enough to satisfy HarnessPlan and
// HandlerResult.
type wasmPlan struct {
	summary string
	effects EffectSummary
	raw     json.RawMessage
}

func (p wasmPlan) EffectSummary() EffectSummary { return p.effects }
func (p wasmPlan) Summary() string              { return p.summary }

type wasmResult struct {
	erased  ErasureCost
	created CreationSummary
}

func (r wasmResult) Erased() ErasureCost      { return r.erased }
func (r wasmResult) Created() CreationSummary { return r.created }

// WasmHandler runs a Handler's body as a sandboxed WASM module under
// wazero, so an operator-authored or third-party handler can be loaded
// without linking arbitrary Go code into the harness process. Deny by
// default: no filesystem, no network, no ambient authority — the module
// receives only its call's JSON payload on stdin and returns JSON on
// stdout.
type WasmHandler struct {
	meta             HandlerMetadata
	store            content.Store
	moduleContentId  content.Id
	cpuTimeLimit     time.Duration
	memoryLimitBytes uint64
}

// NewWasmHandler builds a handler whose body is the WASM module previously
// stored at moduleContentId (fetched from store at call time, never cached
// across processes, so a content hash always resolves to the exact bytes
// that were certified).
func NewWasmHandler(meta HandlerMetadata, store content.Store, moduleContentId content.Id, cpuTimeLimit time.Duration, memoryLimitBytes uint64) *WasmHandler {
	return &WasmHandler{
		meta:             meta,
		store:            store,
		moduleContentId:  moduleContentId,
		cpuTimeLimit:     cpuTimeLimit,
		memoryLimitBytes: memoryLimitBytes,
	}
}

func (h *WasmHandler) Metadata() HandlerMetadata { return h.meta }

func (h *WasmHandler) ValidateParams(ctx context.Context, params map[string]any) error {
	_, err := h.invoke(ctx, "validate_params", params)
	return err
}

func (h *WasmHandler) ComputePlan(ctx context.Context, params map[string]any) (HarnessPlan, error) {
	out, err := h.invoke(ctx, "compute_plan", params)
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Summary string        `json:"summary"`
		Effects EffectSummary `json:"effects"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		return nil, fmt.Errorf("harness: wasm module returned malformed plan: %w", err)
	}
	return wasmPlan{summary: decoded.Summary, effects: decoded.Effects, raw: out}, nil
}

func (h *WasmHandler) ValidatePlan(ctx context.Context, plan HarnessPlan) error {
	p, ok := plan.(wasmPlan)
	if !ok {
		return fmt.Errorf("harness: wasm handler given a non-wasm plan")
	}
	_, err := h.invoke(ctx, "validate_plan", p.raw)
	return err
}

func (h *WasmHandler) Execute(ctx context.Context, plan HarnessPlan, execCtx ExecutionContext) (HandlerResult, error) {
	p, ok := plan.(wasmPlan)
	if !ok {
		return nil, fmt.Errorf("harness: wasm handler given a non-wasm plan")
	}
	input := map[string]any{
		"plan":            json.RawMessage(p.raw),
		"vault_path":      execCtx.VaultPath,
		"executor":        execCtx.Executor,
		"plan_artifact_id": execCtx.PlanArtifactId,
		"dry_run":         execCtx.DryRun,
	}
	out, err := h.invoke(ctx, "execute", input)
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Erased  ErasureCost     `json:"erased"`
		Created CreationSummary `json:"created"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		return nil, fmt.Errorf("harness: wasm module returned malformed result: %w", err)
	}
	return wasmResult{erased: decoded.Erased, created: decoded.Created}, nil
}

// invoke runs the module once per call (fresh instance, no retained state
// between calls) with input marshaled to JSON on stdin and the call's name
// passed as the module's single program argument. The module writes its
// JSON response to stdout.
func (h *WasmHandler) invoke(ctx context.Context, call string, input any) (json.RawMessage, error) {
	wasmBytes, err := h.resolveModule(ctx)
	if err != nil {
		return nil, err
	}

	if h.cpuTimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cpuTimeLimit)
		defer cancel()
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if h.memoryLimitBytes > 0 {
		pages := uint32(h.memoryLimitBytes / (64 * 1024))
		if pages == 0 {
			pages = 1
		}
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(pages)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	defer func() { _ = runtime.Close(ctx) }()

	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("harness: marshal wasm input: %w", err)
	}

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName("irrev-handler").
		WithArgs(call).
		WithStdin(bytes.NewReader(inputJSON)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithStartFunctions("_start")
	// Deny-by-default: no WithFSConfig, no WithSysNanotime, no WithRandSource,
	// no WithEnv — the module gets exactly its call name and stdin payload.

	compiled, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("harness: wasm compile: %w", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	mod, err := runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("harness: wasm module %q timed out: %w", call, ctx.Err())
		}
		return nil, fmt.Errorf("harness: wasm instantiate: %w", err)
	}
	defer func() { _ = mod.Close(ctx) }()

	if stderr.Len() > 0 {
		return nil, fmt.Errorf("harness: wasm module %q stderr: %s", call, stderr.String())
	}
	return json.RawMessage(stdout.Bytes()), nil
}

func (h *WasmHandler) resolveModule(ctx context.Context) ([]byte, error) {
	v, ok, err := h.store.Get(ctx, h.moduleContentId)
	if err != nil {
		return nil, fmt.Errorf("harness: resolve wasm module %s: %w", h.moduleContentId, err)
	}
	if !ok {
		return nil, fmt.Errorf("harness: wasm module %s not found in content store", h.moduleContentId)
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("harness: content %s is not a binary blob", h.moduleContentId)
	}
	return b, nil
}
