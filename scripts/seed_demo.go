// 初始化演示数据脚本
//
// 创建管理员、教师、学生账号各一个，以及一份测验和一份考试，
// 便于本地联调作答流程。重复执行时已存在的账号会被跳过。
//
// 用法: go run scripts/seed_demo.go [-config configs]

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"school_lms_backend/internal/config"
	"school_lms_backend/internal/grading"
	"school_lms_backend/internal/model"
	"school_lms_backend/internal/repository"
	"school_lms_backend/internal/service"
	"school_lms_backend/internal/util"
	"school_lms_backend/pkg/database"
	"school_lms_backend/pkg/logger"
)

func main() {
	configDir := flag.String("config", "configs", "配置文件目录")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database, false)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	users := repository.NewUserRepository(db)
	assessments := repository.NewAssessmentRepository(db)
	attempts := repository.NewAttemptRepository(db)
	events := repository.NewEventRepository(db)
	engine := grading.NewEngine()
	ledger := service.NewAttemptLedger(db, assessments, attempts, events, engine, service.NewAttemptPolicy(cfg.Assessment.Grace()))

	auth := service.NewAuthService(users, cfg)
	authoring := service.NewAssessmentService(db, assessments, attempts, events, users, repository.NewPaperCache(nil, 0), ledger, engine)

	ctx := context.Background()

	accounts := []service.CreateUserRequest{
		{Name: "Admin", Email: "admin@school.local", Password: "admin12345", Role: model.Admin},
		{Name: "Teacher Demo", Email: "teacher@school.local", Password: "teacher12345", Role: model.Teacher},
		{Name: "Student Demo", Email: "student@school.local", Password: "student12345", Role: model.Student},
	}
	var teacherID uint
	for _, req := range accounts {
		u, err := auth.CreateUser(ctx, req)
		if errors.Is(err, util.ErrEmailRegistered) {
			existing, ferr := users.FindByEmail(ctx, req.Email)
			if ferr != nil {
				log.Fatalf("读取账号失败 %s: %v", req.Email, ferr)
			}
			u = existing
			log.Printf("账号已存在，跳过: %s", req.Email)
		} else if err != nil {
			log.Fatalf("创建账号失败 %s: %v", req.Email, err)
		} else {
			log.Printf("已创建账号: %s (%s)", u.Email, u.Role)
		}
		if u.Role == model.Teacher {
			teacherID = u.ID
		}
	}

	now := time.Now()
	limit := 30
	for _, kind := range []model.AssessmentKind{model.KindQuiz, model.KindExam} {
		a, err := authoring.Create(ctx, teacherID, service.AssessmentRequest{
			Kind:             kind,
			Title:            "Demo " + kind.Label(),
			Description:      "演示用" + kind.Label(),
			TimeLimitMinutes: &limit,
			AttemptsAllowed:  2,
			DisplayMode:      model.DisplayAll,
			OpenAt:           now.Add(-time.Hour),
			CloseAt:          now.Add(7 * 24 * time.Hour),
		})
		if err != nil {
			log.Fatalf("创建%s失败: %v", kind.Label(), err)
		}

		questions := []service.QuestionRequest{
			{
				QuestionType: model.QuestionCheckbox,
				Prompt:       "Which of these are prime numbers?",
				Score:        5,
				Choices: []service.ChoiceRequest{
					{ChoiceText: "2", IsCorrect: true},
					{ChoiceText: "3", IsCorrect: true},
					{ChoiceText: "4"},
				},
			},
			{
				QuestionType: model.QuestionMultipleChoice,
				Prompt:       "What is 6 x 7?",
				Score:        2,
				Choices: []service.ChoiceRequest{
					{ChoiceText: "42", IsCorrect: true},
					{ChoiceText: "36"},
				},
			},
			{
				QuestionType: model.QuestionText,
				Prompt:       "Describe one thing you learned this week.",
				Score:        3,
			},
		}
		for _, q := range questions {
			if _, err := authoring.AddQuestion(ctx, a.ID, q); err != nil {
				log.Fatalf("添加题目失败: %v", err)
			}
		}
		log.Printf("已创建%s #%d", kind.Label(), a.ID)
	}

	log.Println("完成！")
}
