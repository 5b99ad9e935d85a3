package service

import (
	"context"

	tenantdomain "github.com/smallbiznis/storeadmin/internal/tenant/domain"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"go.uber.org/zap"
)

// copyCollections deep-copies every document of collections from source to target as chunked atomic batches.
// An empty source reads the legacy root. Copies keep document ids and overwrite existing targets; no link to the
// source remains.
func (s *Service) copyCollections(ctx context.Context, source, target string, collections []string) (*tenantdomain.CopyReport, error) {
	report := &tenantdomain.CopyReport{Collections: make(map[string]int, len(collections))}
	var writes []docstore.Write
	for _, name := range collections {
		snaps, err := s.client.Documents(ctx, s.resolver.Collection(name, source).Query())
		if err != nil {
			return report, err
		}
		dst := s.resolver.Collection(name, target)
		for _, snap := range snaps {
			writes = append(writes, docstore.SetWrite(dst.Doc(snap.Ref.ID()), snap.Data.Clone()))
		}
		report.Collections[name] = len(snaps)
	}
	if len(writes) == 0 {
		return report, nil
	}

	chunkSize := s.wizard.Get().ChunkSize
	result, err := s.client.CommitChunked(ctx, writes, chunkSize)
	report.Result = result
	if err != nil {
		return report, err
	}
	s.log.Debug("collections copied",
		zap.String("source", source),
		zap.String("target", target),
		zap.Int("writes", result.Writes),
		zap.Int("chunks", result.Chunks),
	)
	return report, nil
}
