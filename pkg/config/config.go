/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"github.com/spf13/viper"
)

func SetValue(key string, value interface{}) {
	viper.Set(key, value)
}

func LoadConfig(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	return viper.ReadInConfig()
}

func getString(key, defaultValue string) string {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetString(key)
}

func getBool(key string, defaultValue bool) bool {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetBool(key)
}

func getInt(key string, defaultValue int) int {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetInt(key)
}

func getFloat(key string, defaultValue float64) float64 {
	if !viper.IsSet(key) {
		return defaultValue
	}
	return viper.GetFloat64(key)
}

func GetServerPort() int { return getInt(serverPort, 8080) }

func GetDBName() string              { return getString(dbName, "mammothbox") }
func GetDBUser() string              { return getString(dbUser, "mammothbox") }
func GetDBPassword() string          { return getString(dbPassword, "") }
func GetDBHost() string              { return getString(dbHost, "localhost") }
func GetDBPort() int                 { return getInt(dbPort, 5432) }
func GetDBSslMode() string           { return getString(dbSslMode, "disable") }
func GetDBMaxOpenConns() int         { return getInt(dbMaxOpenConns, 10) }
func GetDBMaxIdleConns() int         { return getInt(dbMaxIdleConns, 5) }
func GetDBMaxLifetimeSecond() int    { return getInt(dbMaxLifetimeSecond, 3600) }
func GetDBMaxIdleTimeSecond() int    { return getInt(dbMaxIdleTimeSecond, 600) }
func GetDBConnectTimeoutSecond() int { return getInt(dbConnectTimeoutSecond, 10) }
func GetDBRequestTimeoutSecond() int { return getInt(dbRequestTimeoutSecond, 20) }
func IsMigrateOnStartup() bool       { return getBool(dbAutoMigrateOnStartup, true) }

// GetQueueBackend selects the queue implementation, "inproc" or "distributed".
func GetQueueBackend() string    { return getString(queueBackend, "inproc") }
func GetRedisAddr() string       { return getString(queueRedisAddr, "localhost:6379") }
func GetRedisDB() int            { return getInt(queueRedisDB, 0) }
func GetRedisPrefix() string     { return getString(queueRedisPrefix, "queue") }
func GetWorkerThreads() int      { return getInt(workerThreads, 4) }
func GetWorkerStopTimeout() int  { return getInt(workerStopTimeout, 30) }
func GetReconcileSchedule() string { return getString(reconcileSchedule, "@every 5m") }

// GetBlobBackend selects the blob store, "s3" or "file".
func GetBlobBackend() string  { return getString(blobBackend, "file") }
func GetBlobRootDir() string  { return getString(blobRootDir, "/var/lib/mammothbox/blobs") }
func GetS3Bucket() string     { return getString(blobBucket, "mammothbox") }
func GetS3Endpoint() string   { return getString(blobEndpoint, "") }
func GetS3Region() string     { return getString(blobRegion, "us-east-1") }
func GetS3AccessKey() string  { return getString(blobAccess, "") }
func GetS3SecretKey() string  { return getString(blobSecret, "") }

func GetSchemaSampleSize() int             { return getInt(schemaSampleSize, 128) }
func GetSchemaStabilityThreshold() float64 { return getFloat(schemaStabilityThreshold, 0.6) }
func GetSchemaMaxTopLevelKeys() int        { return getInt(schemaMaxTopLevelKeys, 20) }
func GetSchemaMaxDepth() int               { return getInt(schemaMaxDepth, 2) }
func GetSchemaSQLScoreThreshold() float64  { return getFloat(schemaSQLScoreThreshold, 0.85) }
func IsAutoMigrate() bool                  { return getBool(schemaAutoMigrate, false) }

func GetClusterMergeCandidateThreshold() float64 {
	return getFloat(clusterMergeCandidateThreshold, 0.8)
}

func GetMaxImageBytes() int64    { return int64(getInt(uploadMaxImageMiB, 50)) << 20 }
func GetMaxVideoBytes() int64    { return int64(getInt(uploadMaxVideoMiB, 500)) << 20 }
func GetMaxAudioBytes() int64    { return int64(getInt(uploadMaxAudioMiB, 100)) << 20 }
func GetMaxDocumentBytes() int64 { return int64(getInt(uploadMaxDocumentMiB, 100)) << 20 }
func GetMaxPayloadBytes() int64  { return int64(getInt(uploadMaxPayloadMiB, 10)) << 20 }
