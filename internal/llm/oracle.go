package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelanni/papergrader/internal/llm/prompts"
	"github.com/pavelanni/papergrader/internal/model"
)

// Result is the oracle's output for one exam: the cleaned answers and
// the raw per-question judgments, before the review gate runs.
type Result struct {
	Extracted []model.ExtractedAnswer
	Judgments []model.QuestionJudgment
}

// Oracle grades one scanned exam. Implementations must fail with an
// error wrapping ErrBadPayload when the model reply cannot be parsed
// as the expected structure.
type Oracle interface {
	Judge(ctx context.Context, examID, rawText string) (*Result, error)
}

// SingleShot extracts and grades in one model call. The model reports
// its own confidence per question.
type SingleShot struct {
	client  *Client
	rubric  string
	variant prompts.Variant
}

// NewSingleShot creates a combined extract-and-grade oracle.
func NewSingleShot(client *Client, rubric string, variant prompts.Variant) *SingleShot {
	return &SingleShot{client: client, rubric: rubric, variant: variant}
}

type singleShotReply struct {
	ExamID    string `json:"exam_id"`
	Questions []struct {
		QuestionID    string  `json:"question_id"`
		StudentAnswer string  `json:"student_answer"`
		AwardedPoints float64 `json:"awarded_points"`
		MaxPoints     float64 `json:"max_points"`
		Verdict       string  `json:"verdict"`
		Confidence    float64 `json:"confidence"`
		Feedback      string  `json:"feedback"`
	} `json:"questions"`
}

// Judge implements Oracle.
func (o *SingleShot) Judge(ctx context.Context, examID, rawText string) (*Result, error) {
	systemPrompt, err := prompts.BuildSingleShotSystem(o.variant, o.rubric)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Exam ID: " + examID + "\n\n")
	sb.WriteString("Raw OCR Text:\n")
	sb.WriteString(prompts.SanitizeOCR(rawText) + "\n")

	payload, err := o.client.GenerateJSON(ctx, systemPrompt, sb.String(), 0)
	if err != nil {
		return nil, err
	}

	var reply singleShotReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	result := &Result{}
	for _, q := range reply.Questions {
		result.Extracted = append(result.Extracted, model.ExtractedAnswer{
			QuestionID:         q.QuestionID,
			StudentAnswer:      q.StudentAnswer,
			TranscriptionNotes: []string{"Extracted via single-shot mode"},
		})
		result.Judgments = append(result.Judgments, model.QuestionJudgment{
			QuestionID:    q.QuestionID,
			StudentAnswer: q.StudentAnswer,
			AwardedPoints: q.AwardedPoints,
			MaxPoints:     q.MaxPoints,
			Verdict:       model.Verdict(q.Verdict),
			Confidence:    q.Confidence,
			Feedback:      q.Feedback,
		})
	}
	return result, nil
}

// TwoStage runs a dedicated extraction call followed by a grading call
// against the rubric and answer key. The grading stage is not asked for
// a confidence value, so judgments carry model.DefaultConfidence.
type TwoStage struct {
	client    *Client
	rubric    string
	answerKey model.AnswerKey
	variant   prompts.Variant
}

// NewTwoStage creates an extract-then-grade oracle.
func NewTwoStage(client *Client, rubric string, key model.AnswerKey, variant prompts.Variant) *TwoStage {
	return &TwoStage{client: client, rubric: rubric, answerKey: key, variant: variant}
}

type extractReply struct {
	ExamID string                  `json:"exam_id"`
	Items  []model.ExtractedAnswer `json:"items"`
}

type gradeReply struct {
	ExamID string `json:"exam_id"`
	Items  []struct {
		QuestionID    string  `json:"question_id"`
		AwardedPoints float64 `json:"awarded_points"`
		MaxPoints     float64 `json:"max_points"`
		Verdict       string  `json:"verdict"`
		Feedback      string  `json:"feedback"`
	} `json:"items"`
}

// gradeInput is the per-item payload handed to the grading stage.
type gradeInput struct {
	QuestionID         string               `json:"question_id"`
	QuestionText       string               `json:"question_text"`
	StudentAnswer      string               `json:"student_answer"`
	TranscriptionNotes []string             `json:"transcription_notes"`
	AnswerKey          model.AnswerKeyEntry `json:"answer_key"`
}

// Judge implements Oracle.
func (o *TwoStage) Judge(ctx context.Context, examID, rawText string) (*Result, error) {
	extracted, err := o.extract(ctx, examID, rawText)
	if err != nil {
		return nil, fmt.Errorf("extraction stage: %w", err)
	}

	judgments, err := o.grade(ctx, examID, extracted)
	if err != nil {
		return nil, fmt.Errorf("grading stage: %w", err)
	}

	// Attach the extracted answer text to each judgment.
	answers := make(map[string]string, len(extracted))
	for _, ex := range extracted {
		answers[ex.QuestionID] = ex.StudentAnswer
	}
	for i := range judgments {
		judgments[i].StudentAnswer = answers[judgments[i].QuestionID]
	}

	return &Result{Extracted: extracted, Judgments: judgments}, nil
}

func (o *TwoStage) extract(ctx context.Context, examID, rawText string) ([]model.ExtractedAnswer, error) {
	systemPrompt, err := prompts.BuildExtractSystem()
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Clean and structure the OCR text below.\n")
	sb.WriteString("exam_id: " + examID + "\n\n")
	sb.WriteString("Raw OCR text:\n")
	sb.WriteString(prompts.SanitizeOCR(rawText) + "\n")

	payload, err := o.client.GenerateJSON(ctx, systemPrompt, sb.String(), 0)
	if err != nil {
		return nil, err
	}

	var reply extractReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return reply.Items, nil
}

func (o *TwoStage) grade(ctx context.Context, examID string, extracted []model.ExtractedAnswer) ([]model.QuestionJudgment, error) {
	systemPrompt, err := prompts.BuildGradeSystem(o.variant)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	inputs := make([]gradeInput, 0, len(extracted))
	for _, ex := range extracted {
		inputs = append(inputs, gradeInput{
			QuestionID:         ex.QuestionID,
			QuestionText:       ex.QuestionText,
			StudentAnswer:      ex.StudentAnswer,
			TranscriptionNotes: ex.TranscriptionNotes,
			AnswerKey:          o.answerKey[ex.QuestionID],
		})
	}
	inputsJSON, err := json.MarshalIndent(inputs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal grading input: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("exam_id: " + examID + "\n\n")
	sb.WriteString("Rubric:\n")
	sb.WriteString(strings.TrimSpace(o.rubric) + "\n\n")
	sb.WriteString("Items to grade (JSON):\n")
	sb.Write(inputsJSON)
	sb.WriteString("\n")

	payload, err := o.client.GenerateJSON(ctx, systemPrompt, sb.String(), 0)
	if err != nil {
		return nil, err
	}

	var reply gradeReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	judgments := make([]model.QuestionJudgment, 0, len(reply.Items))
	for _, it := range reply.Items {
		judgments = append(judgments, model.QuestionJudgment{
			QuestionID:    it.QuestionID,
			AwardedPoints: it.AwardedPoints,
			MaxPoints:     it.MaxPoints,
			Verdict:       model.Verdict(it.Verdict),
			Confidence:    model.DefaultConfidence,
			Feedback:      it.Feedback,
		})
	}
	return judgments, nil
}
