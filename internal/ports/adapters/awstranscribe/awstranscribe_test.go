package awstranscribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	ttypes "github.com/aws/aws-sdk-go-v2/service/transcribe/types"

	"github.com/forPelevin/aishorts/internal/types"
)

type fakeAPI struct {
	started *transcribe.StartTranscriptionJobInput
	job     *ttypes.TranscriptionJob
	err     error
}

func (f *fakeAPI) StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, _ ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error) {
	f.started = in
	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.StartTranscriptionJobOutput{TranscriptionJob: &ttypes.TranscriptionJob{
		TranscriptionJobName:   in.TranscriptionJobName,
		TranscriptionJobStatus: ttypes.TranscriptionJobStatusQueued,
	}}, nil
}

func (f *fakeAPI) GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, _ ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.GetTranscriptionJobOutput{TranscriptionJob: f.job}, nil
}

type fakeStore struct {
	bucket   string
	uploaded map[string]string
	objects  map[string]string
}

func (s *fakeStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	if s.uploaded == nil {
		s.uploaded = map[string]string{}
	}
	s.uploaded[key] = localPath
	return key, nil
}

func (s *fakeStore) Download(ctx context.Context, key, localPath string) (string, error) {
	body, ok := s.objects[key]
	if !ok {
		return "", types.ErrNotFound
	}
	return localPath, os.WriteFile(localPath, []byte(body), 0o644)
}

func (s *fakeStore) Bucket() string        { return s.bucket }
func (s *fakeStore) URI(key string) string { return "s3://" + s.bucket + "/" + key }

const sampleTranscript = `{
  "jobName": "x",
  "results": {
    "transcripts": [{"transcript": "Hello world."}],
    "items": [
      {"start_time": "0.0", "end_time": "0.5", "alternatives": [{"confidence": "0.99", "content": "Hello"}], "type": "pronunciation"},
      {"start_time": "0.6", "end_time": "1.1", "alternatives": [{"confidence": "0.98", "content": "world"}], "type": "pronunciation"},
      {"alternatives": [{"confidence": "0.0", "content": "."}], "type": "punctuation"}
    ]
  }
}`

func TestSubmit_UsesOutputLocationAndJobName(t *testing.T) {
	api := &fakeAPI{}
	store := &fakeStore{bucket: "media"}
	a := New(api, store, "/transcripts/", nil)
	a.now = func() time.Time { return time.Date(2025, 1, 10, 13, 4, 5, 0, time.UTC) }

	h, err := a.Submit(context.Background(), types.TranscribeRequest{MediaURI: "s3://media/transcripts/a.mp3"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.HasPrefix(h.ID, "transcript_20250110_130405_") || len(h.ID) != len("transcript_20250110_130405_")+8 {
		t.Fatalf("unexpected job name %q", h.ID)
	}
	if h.Status != types.JobPending {
		t.Fatalf("unexpected status %s", h.Status)
	}
	in := api.started
	if in.LanguageCode != "ko-KR" || in.MediaFormat != "mp3" {
		t.Fatalf("unexpected defaults %s %s", in.LanguageCode, in.MediaFormat)
	}
	if aws.ToString(in.OutputBucketName) != "media" || aws.ToString(in.OutputKey) != "transcripts/"+h.ID+".json" {
		t.Fatalf("unexpected output location %s/%s", aws.ToString(in.OutputBucketName), aws.ToString(in.OutputKey))
	}
}

func TestStatus_MapsServiceStates(t *testing.T) {
	tests := []struct {
		in   ttypes.TranscriptionJobStatus
		want types.JobStatus
	}{
		{ttypes.TranscriptionJobStatusQueued, types.JobPending},
		{ttypes.TranscriptionJobStatusInProgress, types.JobProcessing},
		{ttypes.TranscriptionJobStatusCompleted, types.JobCompleted},
		{ttypes.TranscriptionJobStatusFailed, types.JobFailed},
		{"SOMETHING_NEW", types.JobUnknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			api := &fakeAPI{job: &ttypes.TranscriptionJob{TranscriptionJobStatus: tt.in}}
			rep, err := New(api, &fakeStore{bucket: "media"}, "transcripts", nil).Status(context.Background(), "job-1")
			if err != nil {
				t.Fatalf("status: %v", err)
			}
			if rep.Status != tt.want {
				t.Fatalf("status = %s, want %s", rep.Status, tt.want)
			}
			if tt.want == types.JobCompleted && rep.Output != "s3://media/transcripts/job-1.json" {
				t.Fatalf("unexpected output %q", rep.Output)
			}
		})
	}
}

func TestStatus_ServiceManagedOutput(t *testing.T) {
	api := &fakeAPI{job: &ttypes.TranscriptionJob{
		TranscriptionJobStatus: ttypes.TranscriptionJobStatusCompleted,
		Transcript:             &ttypes.Transcript{TranscriptFileUri: aws.String("https://example.test/t.json")},
	}}
	rep, err := New(api, nil, "", nil).Status(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if rep.Output != "https://example.test/t.json" {
		t.Fatalf("unexpected output %q", rep.Output)
	}
}

func TestStatus_Error(t *testing.T) {
	api := &fakeAPI{err: errors.New("throttled")}
	if _, err := New(api, nil, "", nil).Status(context.Background(), "job-1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFetch_FromBucket(t *testing.T) {
	store := &fakeStore{bucket: "media", objects: map[string]string{"transcripts/job-1.json": sampleTranscript}}
	items, err := New(&fakeAPI{}, store, "transcripts", nil).Fetch(context.Background(), "s3://media/transcripts/job-1.json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[1].Content != "world" || items[1].Start != 0.6 || items[1].End != 1.1 {
		t.Fatalf("unexpected word %+v", items[1])
	}
	if items[2].Kind != types.ItemPunctuation || items[2].Content != "." {
		t.Fatalf("unexpected punctuation %+v", items[2])
	}
}

func TestFetch_ForeignBucketRejected(t *testing.T) {
	_, err := New(&fakeAPI{}, &fakeStore{bucket: "media"}, "", nil).Fetch(context.Background(), "s3://other/t.json")
	if err == nil {
		t.Fatalf("expected error for foreign bucket")
	}
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleTranscript))
	}))
	defer srv.Close()

	items, err := New(&fakeAPI{}, nil, "", nil).Fetch(context.Background(), srv.URL+"/t.json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 3 || items[0].Content != "Hello" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestStage(t *testing.T) {
	store := &fakeStore{bucket: "media"}
	a := New(&fakeAPI{}, store, "transcripts", nil)
	a.suffix = func() string { return "a1b2c3d4" }
	uri, err := a.Stage(context.Background(), "/tmp/out/voice.mp3")
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if uri != "s3://media/transcripts/voice_a1b2c3d4.mp3" || store.uploaded["transcripts/voice_a1b2c3d4.mp3"] != "/tmp/out/voice.mp3" {
		t.Fatalf("unexpected stage result %q %+v", uri, store.uploaded)
	}
}

func TestStage_SameNameInputsDoNotCollide(t *testing.T) {
	store := &fakeStore{bucket: "media"}
	a := New(&fakeAPI{}, store, "transcripts", nil)
	first, err := a.Stage(context.Background(), "/runs/a/voice.mp3")
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	second, err := a.Stage(context.Background(), "/runs/b/voice.mp3")
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if first == second || len(store.uploaded) != 2 {
		t.Fatalf("staged inputs collide: %q %q %+v", first, second, store.uploaded)
	}
}
