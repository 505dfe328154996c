/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"testing"

	"gotest.tools/assert"
)

func load() error {
	path := "./test.yaml"
	if err := LoadConfig(path); err != nil {
		return err
	}
	return nil
}

func TestConfig(t *testing.T) {
	err := load()
	assert.NilError(t, err)

	assert.Equal(t, GetServerPort(), 8080)
	assert.Equal(t, GetDBHost(), "localhost")
	assert.Equal(t, GetDBRequestTimeoutSecond(), 20)
	assert.Equal(t, GetQueueBackend(), "inproc")
	assert.Equal(t, GetWorkerThreads(), 4)

	assert.Equal(t, GetSchemaSampleSize(), 64)
	assert.Equal(t, GetSchemaStabilityThreshold(), 0.6)
	assert.Equal(t, GetSchemaMaxTopLevelKeys(), 20)
	assert.Equal(t, GetSchemaMaxDepth(), 2)
	assert.Equal(t, IsAutoMigrate(), false)

	assert.Equal(t, GetMaxImageBytes(), int64(50)<<20)
	assert.Equal(t, GetMaxPayloadBytes(), int64(10)<<20)
}

func TestConfigDefaults(t *testing.T) {
	err := load()
	assert.NilError(t, err)

	// keys absent from test.yaml fall back to defaults
	assert.Equal(t, GetSchemaSQLScoreThreshold(), 0.85)
	assert.Equal(t, GetMaxVideoBytes(), int64(500)<<20)
	assert.Equal(t, GetBlobBackend(), "file")
	assert.Equal(t, GetRedisPrefix(), "queue")
}
