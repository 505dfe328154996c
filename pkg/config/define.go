/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package config

const (
	serverPort = "server.port"

	dbName                  = "database.name"
	dbUser                  = "database.user"
	dbPassword              = "database.password"
	dbHost                  = "database.host"
	dbPort                  = "database.port"
	dbSslMode               = "database.ssl_mode"
	dbMaxOpenConns          = "database.max_open_conns"
	dbMaxIdleConns          = "database.max_idle_conns"
	dbMaxLifetimeSecond     = "database.max_lifetime_second"
	dbMaxIdleTimeSecond     = "database.max_idle_time_second"
	dbConnectTimeoutSecond  = "database.connect_timeout_second"
	dbRequestTimeoutSecond  = "database.request_timeout_second"
	dbAutoMigrateOnStartup  = "database.migrate_on_startup"

	queueBackend      = "queue.backend"
	queueRedisAddr    = "queue.redis_addr"
	queueRedisDB      = "queue.redis_db"
	queueRedisPrefix  = "queue.redis_prefix"
	workerThreads     = "worker.threads"
	workerStopTimeout = "worker.stop_timeout_second"
	reconcileSchedule = "worker.reconcile_schedule"

	blobBackend  = "blob.backend"
	blobRootDir  = "blob.root_dir"
	blobBucket   = "blob.s3_bucket"
	blobEndpoint = "blob.s3_endpoint"
	blobRegion   = "blob.s3_region"
	blobAccess   = "blob.s3_access_key"
	blobSecret   = "blob.s3_secret_key"

	schemaSampleSize         = "schema.sample_size"
	schemaStabilityThreshold = "schema.stability_threshold"
	schemaMaxTopLevelKeys    = "schema.max_top_level_keys"
	schemaMaxDepth           = "schema.max_depth"
	schemaSQLScoreThreshold  = "schema.sql_score_threshold"
	schemaAutoMigrate        = "schema.auto_migrate"

	clusterMergeCandidateThreshold = "cluster.merge_candidate_threshold"

	uploadMaxImageMiB    = "upload.max_image_mib"
	uploadMaxVideoMiB    = "upload.max_video_mib"
	uploadMaxAudioMiB    = "upload.max_audio_mib"
	uploadMaxDocumentMiB = "upload.max_document_mib"
	uploadMaxPayloadMiB  = "upload.max_payload_mib"
)
