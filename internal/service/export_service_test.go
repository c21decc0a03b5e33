package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"school_lms_backend/internal/config"
	"school_lms_backend/internal/model"
	"school_lms_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExportService(env *testEnv, dir string) *ExportService {
	storage := &StorageService{Provider: &LocalStorageProvider{Config: &config.StorageConfig{Type: util.StorageLocal, LocalPath: dir}}}
	s := NewExportService(env.authoring, storage)
	s.Now = env.clock.Now
	return s
}

func TestExportService_WriteCSV(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	amy := env.createUser(t, "amy", model.Student)
	ben := env.createUser(t, "ben", model.Student)
	p := env.createPaper(t)

	start, err := env.svc.Start(ctx, model.KindQuiz, p.assessment.ID, amy.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.SaveAnswer(ctx, amy.ID, start.AttemptID, p.mc.ID, scalar(p.choice(p.mc, "B"))))
	_, err = env.svc.Submit(ctx, amy.ID, start.AttemptID, 75)
	require.NoError(t, err)
	_, err = env.svc.Start(ctx, model.KindQuiz, p.assessment.ID, ben.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, newExportService(env, t.TempDir()).WriteCSV(ctx, p.assessment.ID, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, resultsHeader, records[0])

	rows := map[string][]string{}
	for _, r := range records[1:] {
		rows[r[2]] = r
	}
	submitted := rows[amy.Name]
	require.NotNil(t, submitted)
	assert.Equal(t, start.AttemptID, submitted[0])
	assert.Equal(t, amy.Email, submitted[3])
	assert.Equal(t, "1", submitted[4])
	assert.Equal(t, "submitted", submitted[5])
	assert.Equal(t, "75", submitted[8])
	assert.Equal(t, "2", submitted[9])
	assert.Equal(t, "7", submitted[10])

	inProgress := rows[ben.Name]
	require.NotNil(t, inProgress)
	assert.Equal(t, "in_progress", inProgress[5])
	assert.Empty(t, inProgress[7])
	assert.Empty(t, inProgress[9])
}

func TestExportService_WriteCSV_unknownAssessment(t *testing.T) {
	env := newTestEnv(t)
	var buf bytes.Buffer
	err := newExportService(env, t.TempDir()).WriteCSV(context.Background(), 9999, &buf)
	assert.ErrorIs(t, err, util.ErrNotFound)
	assert.Zero(t, buf.Len())
}

func TestExportService_Publish(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPaper(t)
	dir := t.TempDir()

	url, err := newExportService(env, dir).Publish(context.Background(), p.assessment.ID)
	require.NoError(t, err)

	name := fmt.Sprintf("exports/assessment-%d/results-20260302-090000.csv", p.assessment.ID)
	assert.Equal(t, "/uploads/"+name, url)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), strings.Join(resultsHeader, ",")))
}
