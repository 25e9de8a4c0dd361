package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"go.uber.org/zap"
)

// AzureBlobSink implements Sink for Azure Blob Storage. Snapshot files are
// stored as blobs named "{snapshot}/{relPath}".
type AzureBlobSink struct {
	client        *azblob.Client
	containerName string
	logger        *zap.Logger
}

// NewAzureBlobSink creates a new Azure Blob Storage sink
func NewAzureBlobSink(connectionString, containerName string, logger *zap.Logger) (*AzureBlobSink, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	// Ensure container exists
	_, err = client.CreateContainer(context.Background(), containerName, nil)
	if err != nil && !strings.Contains(err.Error(), "ContainerAlreadyExists") {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	logger.Info("Azure backup sink initialized",
		zap.String("container", containerName),
	)

	return &AzureBlobSink{
		client:        client,
		containerName: containerName,
		logger:        logger,
	}, nil
}

// Put uploads one file of a snapshot
func (s *AzureBlobSink) Put(ctx context.Context, snapshot, relPath string, data []byte) error {
	blobName := snapshot + "/" + relPath
	contentType := "application/json"

	_, err := s.client.UploadBuffer(ctx, s.containerName, blobName, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", blobName, err)
	}

	s.logger.Debug("Backup file uploaded",
		zap.String("blobName", blobName),
		zap.String("container", s.containerName),
		zap.Int("size", len(data)),
	)
	return nil
}

// Snapshots lists snapshot prefixes, oldest first
func (s *AzureBlobSink) Snapshots(ctx context.Context) ([]string, error) {
	names, err := s.blobNames(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var snapshots []string
	for _, name := range names {
		prefix, _, ok := strings.Cut(name, "/")
		if !ok || seen[prefix] {
			continue
		}
		seen[prefix] = true
		snapshots = append(snapshots, prefix)
	}
	sort.Strings(snapshots)
	return snapshots, nil
}

// DeleteSnapshot deletes every blob under the snapshot prefix
func (s *AzureBlobSink) DeleteSnapshot(ctx context.Context, snapshot string) error {
	if snapshot == "" {
		return fmt.Errorf("invalid snapshot name: %q", snapshot)
	}

	names, err := s.blobNames(ctx, snapshot+"/")
	if err != nil {
		return err
	}

	for _, name := range names {
		if _, err := s.client.DeleteBlob(ctx, s.containerName, name, nil); err != nil {
			if strings.Contains(err.Error(), "BlobNotFound") {
				continue
			}
			return fmt.Errorf("failed to delete blob %s: %w", name, err)
		}
	}

	s.logger.Info("Backup snapshot deleted from Azure Blob Storage",
		zap.String("snapshot", snapshot),
		zap.String("container", s.containerName),
		zap.Int("blobs", len(names)),
	)
	return nil
}

func (s *AzureBlobSink) blobNames(ctx context.Context, prefix string) ([]string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}

	var names []string
	pager := s.client.NewListBlobsFlatPager(s.containerName, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}
