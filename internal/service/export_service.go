package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"school_lms_backend/internal/util"
	"school_lms_backend/pkg/logger"

	"go.uber.org/zap"
)

var resultsHeader = []string{
	"attempt_id", "learner_id", "learner_name", "learner_email", "attempt_number",
	"status", "started_at", "finished_at", "time_taken", "score", "max_score",
}

// ExportService 导出成绩单 CSV
type ExportService struct {
	Assessments *AssessmentService
	Storage     *StorageService
	Now         Clock
}

func NewExportService(assessments *AssessmentService, storage *StorageService) *ExportService {
	return &ExportService{Assessments: assessments, Storage: storage, Now: time.Now}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// WriteCSV 将测评全部作答写为 CSV
func (s *ExportService) WriteCSV(ctx context.Context, assessmentID uint, w io.Writer) error {
	rows, err := s.Assessments.ListAttempts(ctx, assessmentID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(resultsHeader); err != nil {
		return err
	}
	for _, r := range rows {
		finished := ""
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format(util.TimeFormat)
		}
		timeTaken := ""
		if r.TimeTaken != nil {
			timeTaken = strconv.Itoa(*r.TimeTaken)
		}
		record := []string{
			r.AttemptID,
			strconv.FormatUint(uint64(r.LearnerID), 10),
			r.LearnerName,
			r.LearnerEmail,
			strconv.Itoa(r.AttemptNumber),
			string(r.Status),
			r.StartedAt.Local().Format(util.TimeFormat),
			finished,
			timeTaken,
			formatFloat(r.Score),
			formatFloat(r.MaxScore),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Publish 生成 CSV 并上传到存储，返回下载地址
func (s *ExportService) Publish(ctx context.Context, assessmentID uint) (string, error) {
	var buf bytes.Buffer
	if err := s.WriteCSV(ctx, assessmentID, &buf); err != nil {
		return "", err
	}

	name := fmt.Sprintf("exports/assessment-%d/results-%s.csv", assessmentID, s.Now().Format("20060102-150405"))
	url, err := s.Storage.Upload(ctx, name, bytes.NewReader(buf.Bytes()), int64(buf.Len()), util.MimeCSV)
	if err != nil {
		logger.Log.Error("Results export upload failed", zap.Uint("assessment_id", assessmentID), zap.Error(err))
		return "", util.Persistence(err)
	}
	logger.Log.Info("Results exported", zap.Uint("assessment_id", assessmentID), zap.String("object", name))
	return url, nil
}
