package chat_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/zap-gateway/internal/model/chat"
	chat "github.com/zhouzirui/zap-gateway/internal/service/chat"
)

func TestServiceGetUnknownKey(t *testing.T) {
	svc := chat.NewService()

	conv := svc.Get(context.Background(), "5511999")

	assert.Equal(t, "5511999", conv.Key)
	assert.Empty(t, conv.History)
	assert.Equal(t, chat.DefaultLanguage, conv.PreferredLanguage)
	assert.Zero(t, svc.Count(), "Get must not register the key")
}

func TestServiceHistoryCap(t *testing.T) {
	ctx := context.Background()

	for _, n := range []int{1, 5, 10, 11, 30} {
		t.Run(fmt.Sprintf("%d exchanges", n), func(t *testing.T) {
			svc := chat.NewService()
			for i := 0; i < n; i++ {
				svc.AppendExchange(ctx, "k", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
			}

			history := svc.Get(ctx, "k").History
			require.Len(t, history, min(2*n, 20))
			for i, turn := range history {
				if i%2 == 0 {
					assert.Equal(t, model.RoleUser, turn.Role)
				} else {
					assert.Equal(t, model.RoleAssistant, turn.Role)
				}
			}
			last := history[len(history)-1]
			assert.Equal(t, fmt.Sprintf("a%d", n-1), last.Content)
			if n > 10 {
				// oldest exchanges are evicted first
				assert.Equal(t, fmt.Sprintf("q%d", n-10), history[0].Content)
			}
		})
	}
}

func TestServiceGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	svc := chat.NewService()
	svc.AppendExchange(ctx, "k", "q", "a")

	conv := svc.Get(ctx, "k")
	conv.History[0].Content = "mutated"

	assert.Equal(t, "q", svc.Get(ctx, "k").History[0].Content)
}

func TestServiceSetLanguage(t *testing.T) {
	ctx := context.Background()
	svc := chat.NewService(chat.WithDefaultLanguage("english"))

	assert.Equal(t, "english", svc.Get(ctx, "k").PreferredLanguage)

	svc.SetLanguage(ctx, "k", "french")
	svc.AppendExchange(ctx, "k", "q", "a")

	conv := svc.Get(ctx, "k")
	assert.Equal(t, "french", conv.PreferredLanguage)
	assert.Len(t, conv.History, 2)
	assert.Equal(t, "english", svc.Get(ctx, "other").PreferredLanguage)
}

func TestServiceWithHistoryLimit(t *testing.T) {
	ctx := context.Background()
	svc := chat.NewService(chat.WithHistoryLimit(4))
	for i := 0; i < 5; i++ {
		svc.AppendExchange(ctx, "k", "q", "a")
	}
	assert.Len(t, svc.Get(ctx, "k").History, 4)
}

func TestServiceConcurrentKeys(t *testing.T) {
	ctx := context.Background()
	svc := chat.NewService()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				svc.AppendExchange(ctx, key, "q", "a")
				_ = svc.Get(ctx, key)
			}
		}(fmt.Sprintf("key-%d", i))
	}
	wg.Wait()

	assert.Equal(t, 16, svc.Count())
	for i := 0; i < 16; i++ {
		assert.Len(t, svc.Get(ctx, fmt.Sprintf("key-%d", i)).History, 20)
	}
}
