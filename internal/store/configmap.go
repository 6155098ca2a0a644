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

package store

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/mikelane/eventkeeper/internal/event"
)

const (
	// ConfigMapDataKey is the ConfigMap key holding the document
	ConfigMapDataKey = "events.json"

	managedByLabel = "eventkeeper"
)

// ConfigMapStore keeps the document in a single ConfigMap key. An update
// replaces the whole value, so readers never observe a partial document.
type ConfigMapStore struct {
	client client.Client
	key    types.NamespacedName
	codec  *Codec
}

// NewConfigMapStore returns a store backed by the ConfigMap namespace/name.
func NewConfigMapStore(c client.Client, namespace, name string, codec *Codec) *ConfigMapStore {
	return &ConfigMapStore{
		client: c,
		key:    types.NamespacedName{Namespace: namespace, Name: name},
		codec:  codec,
	}
}

// Load reads the ConfigMap. A missing ConfigMap or key is an empty store.
func (s *ConfigMapStore) Load(ctx context.Context) (map[string]event.Record, error) {
	cm := &corev1.ConfigMap{}
	if err := s.client.Get(ctx, s.key, cm); err != nil {
		if apierrors.IsNotFound(err) {
			return make(map[string]event.Record), nil
		}
		return nil, fmt.Errorf("failed to get configmap %s: %w", s.key, err)
	}

	data, ok := cm.Data[ConfigMapDataKey]
	if !ok {
		return make(map[string]event.Record), nil
	}

	records, err := s.codec.Decode([]byte(data))
	if err != nil {
		return nil, &event.CorruptStateError{Source: "configmap " + s.key.String(), Err: err}
	}
	return records, nil
}

// Save creates or updates the ConfigMap with the encoded records.
func (s *ConfigMapStore) Save(ctx context.Context, records map[string]event.Record) error {
	data, err := s.codec.Encode(records)
	if err != nil {
		return err
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      s.key.Name,
			Namespace: s.key.Namespace,
		},
	}

	_, err = controllerutil.CreateOrUpdate(ctx, s.client, cm, func() error {
		if cm.Labels == nil {
			cm.Labels = make(map[string]string)
		}
		cm.Labels["app.kubernetes.io/managed-by"] = managedByLabel

		if cm.Data == nil {
			cm.Data = make(map[string]string)
		}
		cm.Data[ConfigMapDataKey] = string(data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save configmap %s: %w", s.key, err)
	}
	return nil
}
