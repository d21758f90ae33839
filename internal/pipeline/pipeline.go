// Package pipeline runs the offline compilation flow: extract recorded
// test methods, parse them, compile capabilities, generate descriptors,
// and persist the per-app documents the runtime catalog aggregates.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"capgen/internal/capability"
	"capgen/internal/describe"
	"capgen/internal/grammar"
	"capgen/internal/workspace"
)

// Pipeline compiles one or more app workspaces. Generator may be nil, in
// which case every descriptor is persisted as pending and a later run with
// a model configured fills them in.
type Pipeline struct {
	Layout      workspace.Layout
	Compiler    *capability.Compiler
	Generator   *describe.Generator
	Logger      *zap.Logger
	Concurrency int
}

// AppResult summarizes one app's run.
type AppResult struct {
	AppID    string
	Compiled int
	Skipped  int
	Pending  int
}

// New creates a pipeline with the default compiler.
func New(layout workspace.Layout, generator *describe.Generator, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		Layout:      layout,
		Compiler:    capability.NewCompiler(),
		Generator:   generator,
		Logger:      logger,
		Concurrency: 4,
	}
}

// Run processes the given apps in parallel; with no apps given, every app
// in the workspace is processed. Per-method failures are logged and
// skipped; a failing app aborts the whole run.
func (p *Pipeline) Run(ctx context.Context, appIDs []string) ([]AppResult, error) {
	if len(appIDs) == 0 {
		var err error
		appIDs, err = p.Layout.ListApps()
		if err != nil {
			return nil, err
		}
	}
	if len(appIDs) == 0 {
		return nil, fmt.Errorf("no app workspaces found under %s", p.Layout.Root)
	}

	var mu sync.Mutex
	var results []AppResult

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Concurrency)
	for _, appID := range appIDs {
		appID := appID
		g.Go(func() error {
			result, err := p.processApp(ctx, appID)
			if err != nil {
				return fmt.Errorf("app %s: %w", appID, err)
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) processApp(ctx context.Context, appID string) (AppResult, error) {
	result := AppResult{AppID: appID}
	logger := p.Logger.With(zap.String("app_id", appID))

	sources, err := p.Layout.InputSources(appID)
	if err != nil {
		return result, err
	}
	var methods []workspace.ExtractedMethod
	for _, path := range sources {
		data, err := os.ReadFile(path)
		if err != nil {
			return result, err
		}
		methods = append(methods, workspace.SplitTestMethods(string(data))...)
	}
	if err := p.Layout.WriteExtracted(appID, methods); err != nil {
		return result, err
	}
	logger.Info("extracted test methods", zap.Int("count", len(methods)))

	intro, _ := p.Layout.AppIntroduction(appID)

	var capabilities []capability.Capability
	var skills []describe.SkillDescriptor
	for _, method := range methods {
		parsed, err := grammar.ParseMethod(method.Source)
		if err != nil {
			logger.Warn("skipping method",
				zap.String("method", method.Name), zap.Error(err))
			result.Skipped++
			continue
		}
		compiled, err := p.Compiler.Compile(appID, parsed)
		if err != nil {
			logger.Warn("skipping method",
				zap.String("method", method.Name), zap.Error(err))
			result.Skipped++
			continue
		}
		capabilities = append(capabilities, *compiled)
		result.Compiled++

		descriptor := p.describe(ctx, compiled, intro)
		if descriptor.Status == describe.StatusPending {
			result.Pending++
		}
		skills = append(skills, *descriptor)
	}

	doc := describe.AppSkills{AppID: appID, Skills: skills}
	if p.Generator != nil {
		summary, err := p.Generator.AppSummary(ctx, appID, intro, skills)
		if err != nil {
			logger.Warn("app summary generation failed", zap.Error(err))
		} else {
			doc.Summary = summary
		}
	}

	if err := workspace.WriteJSON(p.Layout.CapabilitiesPath(appID), capabilities); err != nil {
		return result, err
	}
	if err := workspace.WriteJSON(p.Layout.SkillsPath(appID), doc); err != nil {
		return result, err
	}
	logger.Info("app compiled",
		zap.Int("capabilities", result.Compiled),
		zap.Int("skipped", result.Skipped),
		zap.Int("pending_descriptors", result.Pending))
	return result, nil
}

func (p *Pipeline) describe(ctx context.Context, c *capability.Capability, intro string) *describe.SkillDescriptor {
	if p.Generator == nil {
		return &describe.SkillDescriptor{Capability: *c, Status: describe.StatusPending}
	}
	return p.Generator.Describe(ctx, c, intro)
}
