package config

import (
	"context"
	"fmt"
	"io"
	"sort"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentroom/core"
	"github.com/hupe1980/agentroom/memory"
	"github.com/hupe1980/agentroom/model"
	"github.com/hupe1980/agentroom/model/anthropic"
	"github.com/hupe1980/agentroom/model/openai"
)

// BuildModels registers every configured model. Models are registered in
// name order, so the first name is the fallback for agents without llm.
func BuildModels(models map[string]ModelConfig) (*model.Registry, error) {
	reg := model.NewRegistry()

	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mc := models[name]
		switch mc.Provider {
		case ProviderOpenAI:
			reg.Register(name, openai.NewModel(func(o *openai.Options) {
				if mc.Model != "" {
					o.Model = mc.Model
				}
				if mc.Temperature > 0 {
					o.Temperature = mc.Temperature
				}
				if mc.MaxTokens > 0 {
					o.MaxCompletionTokens = mc.MaxTokens
				}
				o.APIKey = mc.APIKey
				o.BaseURL = mc.BaseURL
			}))
		case ProviderAnthropic:
			reg.Register(name, anthropic.NewModel(func(o *anthropic.Options) {
				if mc.Model != "" {
					o.Model = sdkanthropic.Model(mc.Model)
				}
				if mc.Temperature > 0 {
					o.Temperature = mc.Temperature
				}
				if mc.MaxTokens > 0 {
					o.MaxTokens = mc.MaxTokens
				}
				o.APIKey = mc.APIKey
			}))
		case ProviderMock:
			reg.Register(name, model.NewMockModel(mc.Model, ProviderMock))
		default:
			return nil, fmt.Errorf("model %s: unknown provider %q", name, mc.Provider)
		}
	}
	return reg, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// BuildRecordStore opens the memory record store. The returned closer
// releases the backend connection.
func BuildRecordStore(ctx context.Context, cfg MemoryConfig) (core.RecordStore, io.Closer, error) {
	switch cfg.Backend {
	case MemoryBackendFile, "":
		return memory.NewFileStore(cfg.Dir), nopCloser{}, nil
	case MemoryBackendInMemory:
		return memory.NewInMemoryStore(), nopCloser{}, nil
	case MemoryBackendRedis:
		client, err := memory.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		store := memory.NewRedisStore(client, func(o *memory.RedisOptions) {
			o.KeyPrefix = cfg.RedisPrefix
		})
		return store, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}
