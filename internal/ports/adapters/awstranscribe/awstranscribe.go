package awstranscribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	ttypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/google/uuid"

	"github.com/forPelevin/aishorts/internal/ports/adapters/s3store"
	"github.com/forPelevin/aishorts/internal/types"
)

const Name = "aws-transcribe"

// API is the subset of the Transcribe client used here.
type API interface {
	StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

// ObjectStore is where media is staged and transcripts are written.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	Download(ctx context.Context, key, localPath string) (string, error)
	Bucket() string
	URI(key string) string
}

type Adapter struct {
	api    API
	store  ObjectStore
	prefix string
	// writeOutput stores transcripts in the store's bucket instead of the
	// service-managed one.
	writeOutput bool
	http        *http.Client
	logger      *slog.Logger
	now         func() time.Time
	suffix      func() string
}

func NewFromConfig(cfg aws.Config, store ObjectStore, prefix string, logger *slog.Logger) *Adapter {
	return New(transcribe.NewFromConfig(cfg), store, prefix, logger)
}

func New(api API, store ObjectStore, prefix string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		api:         api,
		store:       store,
		prefix:      strings.Trim(prefix, "/"),
		writeOutput: store != nil && store.Bucket() != "",
		http:        &http.Client{Timeout: 2 * time.Minute},
		logger:      logger,
		now:         time.Now,
		suffix:      func() string { return uuid.NewString()[:8] },
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Stage(ctx context.Context, localPath string) (string, error) {
	if a.store == nil {
		return "", errors.New("aws transcribe: no object store configured")
	}
	ext := filepath.Ext(localPath)
	stem := strings.TrimSuffix(filepath.Base(localPath), ext)
	key, err := a.store.Upload(ctx, localPath, path.Join(a.prefix, stem+"_"+a.suffix()+ext))
	if err != nil {
		return "", err
	}
	return a.store.URI(key), nil
}

// JobName returns transcript_<YYYYMMDD_HHMMSS>_<8 hex>.
func (a *Adapter) JobName() string {
	return a.now().Format("transcript_20060102_150405") + "_" + a.suffix()
}

func (a *Adapter) outputKey(jobName string) string {
	return path.Join(a.prefix, jobName+".json")
}

func (a *Adapter) Submit(ctx context.Context, req types.TranscribeRequest) (types.JobHandle, error) {
	if req.LanguageCode == "" {
		req.LanguageCode = "ko-KR"
	}
	if req.MediaFormat == "" {
		req.MediaFormat = "mp3"
	}
	name := a.JobName()
	in := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(name),
		LanguageCode:         ttypes.LanguageCode(req.LanguageCode),
		MediaFormat:          ttypes.MediaFormat(req.MediaFormat),
		Media:                &ttypes.Media{MediaFileUri: aws.String(req.MediaURI)},
	}
	if a.writeOutput {
		in.OutputBucketName = aws.String(a.store.Bucket())
		in.OutputKey = aws.String(a.outputKey(name))
	}

	out, err := a.api.StartTranscriptionJob(ctx, in)
	if err != nil {
		return types.JobHandle{}, providerError("start transcription job", err)
	}
	h := types.JobHandle{ID: name, Status: types.JobPending}
	if out.TranscriptionJob != nil {
		h.Status = mapStatus(out.TranscriptionJob.TranscriptionJobStatus)
		h.CreatedAt = aws.ToTime(out.TranscriptionJob.CreationTime)
	}
	a.logger.Info("transcription job started", "job", name, "media", req.MediaURI, "language", req.LanguageCode)
	return h, nil
}

func (a *Adapter) Status(ctx context.Context, id string) (types.JobReport, error) {
	out, err := a.api.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(id),
	})
	if err != nil {
		return types.JobReport{}, providerError("get transcription job", err)
	}
	job := out.TranscriptionJob
	if job == nil {
		return types.JobReport{ID: id, Status: types.JobUnknown}, nil
	}
	rep := types.JobReport{
		ID:        id,
		Status:    mapStatus(job.TranscriptionJobStatus),
		CreatedAt: aws.ToTime(job.CreationTime),
		Raw:       string(job.TranscriptionJobStatus),
	}
	if rep.Status == types.JobCompleted {
		switch {
		case a.writeOutput:
			rep.Output = a.store.URI(a.outputKey(id))
		case job.Transcript != nil:
			rep.Output = aws.ToString(job.Transcript.TranscriptFileUri)
		}
	}
	if rep.Status == types.JobFailed && job.FailureReason != nil {
		a.logger.Error("transcription job failed", "job", id, "reason", aws.ToString(job.FailureReason))
	}
	return rep, nil
}

func mapStatus(s ttypes.TranscriptionJobStatus) types.JobStatus {
	switch s {
	case ttypes.TranscriptionJobStatusQueued:
		return types.JobPending
	case ttypes.TranscriptionJobStatusInProgress:
		return types.JobProcessing
	case ttypes.TranscriptionJobStatusCompleted:
		return types.JobCompleted
	case ttypes.TranscriptionJobStatusFailed:
		return types.JobFailed
	default:
		return types.JobUnknown
	}
}

func providerError(op string, err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return &types.ProviderError{Provider: Name, Op: op, StatusCode: re.HTTPStatusCode(), Body: err.Error()}
	}
	return fmt.Errorf("%s %s: %w", Name, op, err)
}

// Fetch reads the transcript JSON at output, either an s3:// URI in our
// bucket or an HTTPS URL handed out by the service.
func (a *Adapter) Fetch(ctx context.Context, output string) ([]types.TranscriptItem, error) {
	b, err := a.read(ctx, output)
	if err != nil {
		return nil, err
	}
	return parseTranscript(b)
}

func (a *Adapter) read(ctx context.Context, output string) ([]byte, error) {
	if bucket, key, ok := s3store.ParseURI(output); ok {
		if a.store == nil || bucket != a.store.Bucket() {
			return nil, fmt.Errorf("aws transcribe: transcript %s is outside the configured bucket", output)
		}
		dir, err := os.MkdirTemp("", "transcript-*")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(dir)
		local, err := a.store.Download(ctx, key, filepath.Join(dir, path.Base(key)))
		if err != nil {
			return nil, err
		}
		return os.ReadFile(local)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, output, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch transcript: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &types.ProviderError{Provider: Name, Op: "fetch transcript", StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

type transcriptDoc struct {
	Results struct {
		Items []struct {
			Type         string `json:"type"`
			StartTime    string `json:"start_time"`
			EndTime      string `json:"end_time"`
			Alternatives []struct {
				Content string `json:"content"`
			} `json:"alternatives"`
		} `json:"items"`
	} `json:"results"`
}

func parseTranscript(b []byte) ([]types.TranscriptItem, error) {
	var doc transcriptDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	items := make([]types.TranscriptItem, 0, len(doc.Results.Items))
	for _, it := range doc.Results.Items {
		var content string
		if len(it.Alternatives) > 0 {
			content = it.Alternatives[0].Content
		}
		start := parseSeconds(it.StartTime)
		end := start
		if it.EndTime != "" {
			end = parseSeconds(it.EndTime)
		}
		items = append(items, types.TranscriptItem{
			Kind:    types.TranscriptItemKind(it.Type),
			Content: content,
			Start:   start,
			End:     end,
		})
	}
	return items, nil
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
