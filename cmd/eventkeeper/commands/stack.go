/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package commands

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/mikelane/eventkeeper/internal/config"
	"github.com/mikelane/eventkeeper/internal/store"
	"github.com/mikelane/eventkeeper/internal/timepolicy"
)

func newPolicy(cfg *config.Config) (*timepolicy.Policy, error) {
	return timepolicy.Load(clock.RealClock{}, cfg.Timezone)
}

// newStore builds the configured state store. The returned function releases
// its connections.
func newStore(ctx context.Context, cfg *config.Config, policy *timepolicy.Policy) (store.Store, func(), error) {
	codec := store.NewCodec(policy)
	noop := func() {}

	switch cfg.Store.Backend {
	case config.BackendConfigMap:
		restConfig, err := ctrl.GetConfig()
		if err != nil {
			return nil, noop, fmt.Errorf("failed to get kubeconfig: %w", err)
		}
		k8sClient, err := client.New(restConfig, client.Options{Scheme: clientgoscheme.Scheme})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create kubernetes client: %w", err)
		}
		return store.NewConfigMapStore(k8sClient, cfg.Store.ConfigMap.Namespace, cfg.Store.ConfigMap.Name, codec), noop, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Store.Redis.Addr, err)
		}
		return store.NewRedisStore(rdb, cfg.Store.Redis.Key, codec), func() { _ = rdb.Close() }, nil

	default:
		return store.NewFileStore(cfg.Store.Path, codec), noop, nil
	}
}
