/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/mammothbox/mammothbox/pkg/blob"
	"github.com/mammothbox/mammothbox/pkg/database/client"
	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/utils/vectorutil"
)

// DefaultClusterName holds media without an embedding until an embedder is
// configured.
const DefaultClusterName = "unsorted"

// Embedder turns media bytes into a vector. Implementations live outside this
// system; a nil embedder leaves assets in the default cluster.
type Embedder interface {
	Embed(ctx context.Context, data []byte, contentType string) ([]float64, error)
}

// Service is the local media pipeline: it copies raw bytes into the canonical
// media layout, assigns a cluster and finalizes the asset row.
type Service struct {
	catalog  client.Interface
	blobs    blob.Interface
	embedder Embedder
}

func NewService(catalog client.Interface, blobs blob.Interface, embedder Embedder) *Service {
	return &Service{catalog: catalog, blobs: blobs, embedder: embedder}
}

// ProcessAsset normalizes one media or document asset: raw bytes move into
// media/clusters/<cluster>/<asset>.<ext>, the asset gets its cluster and
// terminal status.
func (s *Service) ProcessAsset(ctx context.Context, asset *client.Asset) error {
	reader, err := s.blobs.Retrieve(ctx, asset.Uri)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		return commonerrors.WrapError(err, "failed to read raw bytes for "+asset.Id, commonerrors.StorageFailure)
	}

	if !asset.Sha256.Valid || asset.Sha256.String == "" {
		sum := sha256.Sum256(data)
		asset.Sha256 = dbutils.NullString(hex.EncodeToString(sum[:]))
	}
	if s.embedder != nil && len(asset.Embedding) == 0 {
		embedding, err := s.embedder.Embed(ctx, data, asset.ContentType.String)
		if err != nil {
			return err
		}
		asset.Embedding = vectorutil.Normalize(embedding)
	}

	clusterId, err := s.assignCluster(ctx, asset)
	if err != nil {
		return err
	}

	uri, err := s.blobs.StoreMedia(ctx, clusterId, asset.Id, extensionFor(asset.ContentType.String),
		bytes.NewReader(data), asset.ContentType.String)
	if err != nil {
		return err
	}

	asset.Uri = uri
	asset.ClusterId = dbutils.NullString(clusterId)
	asset.Status = client.StatusDone
	return s.catalog.UpdateAssetMedia(ctx, asset)
}

// assignCluster places the asset in the nearest cluster whose threshold its
// embedding meets, creating a fresh provisional cluster otherwise. Assets
// without an embedding land in the shared default cluster.
func (s *Service) assignCluster(ctx context.Context, asset *client.Asset) (string, error) {
	if asset.ClusterId.Valid && asset.ClusterId.String != "" {
		return asset.ClusterId.String, nil
	}
	if len(asset.Embedding) == 0 {
		return s.ensureCluster(ctx, DefaultClusterName, nil)
	}

	clusters, err := s.catalog.SelectClusters(ctx, nil, nil, -1, 0)
	if err != nil {
		return "", err
	}
	var best *client.Cluster
	bestSimilarity := -1.0
	for _, cluster := range clusters {
		similarity := vectorutil.CosineSimilarity(asset.Embedding, cluster.Centroid)
		if similarity > bestSimilarity {
			best, bestSimilarity = cluster, similarity
		}
	}
	if best != nil && bestSimilarity >= best.Threshold {
		if err = s.refreshCentroid(ctx, best.Id, asset.Embedding); err != nil {
			klog.ErrorS(err, "failed to refresh centroid", "cluster", best.Id)
		}
		return best.Id, nil
	}

	name := fmt.Sprintf("cluster-%s", asset.Id[:8])
	return s.ensureCluster(ctx, name, vectorutil.Normalize(append([]float64(nil), asset.Embedding...)))
}

// ensureCluster returns the id of the named cluster, creating it when absent.
// A concurrent create is resolved by re-reading the winner.
func (s *Service) ensureCluster(ctx context.Context, name string, centroid []float64) (string, error) {
	existing, err := s.catalog.GetClusterByName(ctx, name)
	if err == nil {
		return existing.Id, nil
	}
	if !commonerrors.IsNotFound(err) {
		return "", err
	}
	cluster := &client.Cluster{
		Id:          uuid.NewString(),
		Name:        name,
		Centroid:    centroid,
		Threshold:   0.8,
		Provisional: true,
		CreatedAt:   dbutils.NullTime(time.Now().UTC()),
		UpdatedAt:   dbutils.NullTime(time.Now().UTC()),
	}
	if cluster.Centroid == nil {
		cluster.Centroid = []float64{}
	}
	if err = s.catalog.InsertCluster(ctx, cluster); err != nil {
		if commonerrors.IsAlreadyExist(err) || commonerrors.ReasonForError(err) == commonerrors.ClusterNameExists {
			winner, getErr := s.catalog.GetClusterByName(ctx, name)
			if getErr != nil {
				return "", getErr
			}
			return winner.Id, nil
		}
		return "", err
	}
	return cluster.Id, nil
}

// refreshCentroid recomputes the cluster centroid as the renormalized mean of
// its member embeddings plus the incoming one.
func (s *Service) refreshCentroid(ctx context.Context, clusterId string, embedding []float64) error {
	embeddings, err := s.catalog.SelectClusterEmbeddings(ctx, clusterId)
	if err != nil {
		return err
	}
	embeddings = append(embeddings, embedding)
	centroid := vectorutil.Normalize(vectorutil.Mean(embeddings))
	return s.catalog.UpdateClusterCentroid(ctx, nil, clusterId, centroid)
}

// extensionFor maps a MIME type to a file extension without the dot.
func extensionFor(contentType string) string {
	extensions, err := mime.ExtensionsByType(contentType)
	if err != nil || len(extensions) == 0 {
		return "bin"
	}
	return strings.TrimPrefix(extensions[0], ".")
}
