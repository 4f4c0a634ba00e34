package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sonerady/dires-server-sub002/app/repository"
	"github.com/sonerady/dires-server-sub002/internal/pkg/outputstore"
)

// ArchiveProcessor copies a succeeded generation's output into durable
// storage and records the archived location on the audit row.
type ArchiveProcessor interface {
	Archive(ctx context.Context, payload *OutputArchiveJobPayload) error
}

type s3ArchiveProcessor struct {
	store *outputstore.Client
	jobs  repository.GenerationJobRepository
}

// NewS3ArchiveProcessor creates a processor backed by the S3 output store.
func NewS3ArchiveProcessor(store *outputstore.Client, jobs repository.GenerationJobRepository) ArchiveProcessor {
	return &s3ArchiveProcessor{store: store, jobs: jobs}
}

func (p *s3ArchiveProcessor) Archive(ctx context.Context, payload *OutputArchiveJobPayload) error {
	if payload.OutputURL == "" {
		return errors.New("output url is empty")
	}

	key, err := p.store.ArchiveFromURL(ctx, payload.OutputURL, payload.GenerationJobID)
	if err != nil {
		return fmt.Errorf("archive output for job %s: %w", payload.GenerationJobID, err)
	}

	job, err := p.jobs.GetByID(payload.GenerationJobID)
	if err != nil {
		return fmt.Errorf("load generation job %s: %w", payload.GenerationJobID, err)
	}
	job.ArchivedURL = key
	if err := p.jobs.Update(job); err != nil {
		return fmt.Errorf("update generation job %s: %w", payload.GenerationJobID, err)
	}

	log.Infof("[JobQueue] archived output of generation job %s", payload.GenerationJobID)
	return nil
}

// processOutputArchiveJob processes a single output-archive job
func (q *Queue) processOutputArchiveJob(ctx context.Context, job *Job) error {
	if q.archiver == nil {
		return errors.New("no archive processor configured")
	}

	payload, err := OutputArchiveJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid output archive payload: %w", err)
	}

	return q.archiver.Archive(ctx, payload)
}
