/*
Copyright 2025 Ringflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package storagemonitor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ringflow/ringflow/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardCapacity_UnderThreshold(t *testing.T) {
	config.MockConfig(&config.Configuration{})

	// No volume can exceed 100 percent.
	used, err := GuardCapacity(t.TempDir(), 100)
	require.NoError(t, err)
	assert.Greater(t, used, 0.0)
}

func TestGuardCapacity_OverThresholdBroadcasts(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	events := broker.Subscribe()

	// Any volume with a filesystem on it sits above a hundredth of a percent.
	used, err := GuardCapacity(t.TempDir(), 0.01)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity")
	assert.Greater(t, used, 0.01)

	select {
	case event := <-events:
		assert.Equal(t, used, event.UsedPercent)
		assert.Contains(t, event.Message, "threshold")
	case <-time.After(time.Second):
		t.Fatal("expected a capacity event broadcast")
	}
}

func TestNearestExisting(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "backups", "2026-08-23")

	assert.Equal(t, dir, nearestExisting(missing))
	assert.Equal(t, dir, nearestExisting(dir))
}
