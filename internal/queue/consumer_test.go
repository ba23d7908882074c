package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/dixii/namedetect-worker/internal/detect"
	"github.com/dixii/namedetect-worker/internal/errors"
	"github.com/dixii/namedetect-worker/internal/priors"
	"github.com/dixii/namedetect-worker/internal/storage"
)

type fakeService struct {
	result         *detect.DetectionResult
	detectErr      error
	learnErr       error
	learnCalls     int
	lastCorrection *priors.Correction
}

func (f *fakeService) Detect(ctx context.Context, imagePath, docType string) (*detect.DetectionResult, error) {
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return f.result, nil
}

func (f *fakeService) Learn(c *priors.Correction) error {
	f.learnCalls++
	f.lastCorrection = c
	return f.learnErr
}

type fakeJobRecorder struct {
	updates []storage.JobUpdate
}

func (f *fakeJobRecorder) UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error {
	f.updates = append(f.updates, *update)
	return nil
}

func newTestConsumer(t *testing.T, service DetectionService, recorder JobRecorder) *Consumer {
	t.Helper()
	c, err := NewConsumer(&ConsumerConfig{
		RedisURL:    "redis://localhost:6379",
		QueueName:   "name_detection",
		Concurrency: 1,
		Service:     service,
		Recorder:    recorder,
	})
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return c
}

func detectTask(t *testing.T, data DetectJobData) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(TaskDetectNames, payload)
}

func TestHandleDetectRecordsCompletion(t *testing.T) {
	service := &fakeService{result: &detect.DetectionResult{
		PrimaryName:   "Fred Farkouh",
		CombinedNames: []string{"Fred Farkouh", "Acme Corp"},
		Confidence:    0.87,
		MethodsUsed:   []detect.Source{detect.SourcePattern, detect.SourceGeneral},
	}}
	recorder := &fakeJobRecorder{}
	c := newTestConsumer(t, service, recorder)

	task := detectTask(t, DetectJobData{JobID: "11111111-1111-1111-1111-111111111111", ImagePath: "/tmp/doc.png", DocType: "K-1"})
	if err := c.handleDetect(context.Background(), task); err != nil {
		t.Fatalf("handleDetect: %v", err)
	}

	if len(recorder.updates) != 2 {
		t.Fatalf("updates = %d, want processing then completed", len(recorder.updates))
	}
	if recorder.updates[0].Status != "processing" {
		t.Errorf("first status = %q", recorder.updates[0].Status)
	}
	final := recorder.updates[1]
	if final.Status != "completed" {
		t.Errorf("final status = %q", final.Status)
	}
	if final.PrimaryName != "Fred Farkouh" || len(final.DetectedNames) != 2 {
		t.Errorf("final result = %+v", final)
	}
	if len(final.MethodsUsed) != 2 {
		t.Errorf("methods = %v", final.MethodsUsed)
	}
}

func TestHandleDetectRecordsFailureWithErrorCode(t *testing.T) {
	service := &fakeService{
		detectErr: errors.NewInputUnreadableError("/tmp/doc.png", fmt.Errorf("no such file")),
	}
	recorder := &fakeJobRecorder{}
	c := newTestConsumer(t, service, recorder)

	task := detectTask(t, DetectJobData{JobID: "22222222-2222-2222-2222-222222222222", ImagePath: "/tmp/doc.png"})
	if err := c.handleDetect(context.Background(), task); err == nil {
		t.Fatal("expected error so the task retries")
	}

	final := recorder.updates[len(recorder.updates)-1]
	if final.Status != "failed" {
		t.Errorf("final status = %q", final.Status)
	}
	if final.ErrorCode != string(errors.ErrorInputUnreadable) {
		t.Errorf("error code = %q", final.ErrorCode)
	}
}

func TestHandleDetectRequiresImagePath(t *testing.T) {
	c := newTestConsumer(t, &fakeService{result: &detect.DetectionResult{}}, nil)

	task := detectTask(t, DetectJobData{JobID: "x"})
	if err := c.handleDetect(context.Background(), task); err == nil {
		t.Fatal("expected error for missing image path")
	}
}

func TestHandleLearnForwardsCorrection(t *testing.T) {
	service := &fakeService{}
	c := newTestConsumer(t, service, nil)

	payload, _ := json.Marshal(LearnJobData{
		ImageRef:      "doc.png",
		Name:          "Fred Farkouh",
		FormType:      "K-1",
		Box:           &[4]float64{100, 50, 300, 80},
		ImageWidth:    2550,
		ImageHeight:   3300,
		Confidence:    0.95,
		TokenSnapshot: json.RawMessage(`[{"text":"Fred"}]`),
	})
	task := asynq.NewTask(TaskLearnCorrection, payload)

	if err := c.handleLearn(context.Background(), task); err != nil {
		t.Fatalf("handleLearn: %v", err)
	}
	if service.learnCalls != 1 {
		t.Fatalf("learn calls = %d", service.learnCalls)
	}
	got := service.lastCorrection
	if got == nil {
		t.Fatal("correction not forwarded")
	}
	if got.Name != "Fred Farkouh" || got.FormType != "K-1" {
		t.Errorf("forwarded %q / %q", got.Name, got.FormType)
	}
	if got.Box == nil || got.Box.X1 != 300 {
		t.Errorf("forwarded box = %+v", got.Box)
	}
	if got.ImageWidth != 2550 || got.ImageHeight != 3300 {
		t.Errorf("forwarded dimensions = %v x %v", got.ImageWidth, got.ImageHeight)
	}
	if got.Confidence != 0.95 {
		t.Errorf("forwarded confidence = %v", got.Confidence)
	}
	if len(got.TokenSnapshot) == 0 {
		t.Error("token snapshot dropped")
	}
}

func TestHandleLearnRequiresName(t *testing.T) {
	c := newTestConsumer(t, &fakeService{}, nil)

	payload, _ := json.Marshal(LearnJobData{ImageRef: "doc.png", FormType: "K-1"})
	task := asynq.NewTask(TaskLearnCorrection, payload)

	if err := c.handleLearn(context.Background(), task); err == nil {
		t.Fatal("expected error for correction without a name")
	}
}

func TestHandleLearnAcceptsMissingFormType(t *testing.T) {
	service := &fakeService{}
	c := newTestConsumer(t, service, nil)

	payload, _ := json.Marshal(LearnJobData{ImageRef: "doc.png", Name: "Jane Doe"})
	task := asynq.NewTask(TaskLearnCorrection, payload)

	if err := c.handleLearn(context.Background(), task); err != nil {
		t.Fatalf("handleLearn: %v", err)
	}
	if service.learnCalls != 1 {
		t.Fatalf("learn calls = %d", service.learnCalls)
	}
	if service.lastCorrection.FormType != "" {
		t.Errorf("form type = %q, the store maps blank to Unknown", service.lastCorrection.FormType)
	}
}
