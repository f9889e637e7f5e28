// 手动触发过期尝试清理脚本
//
// 该功能已集成到主应用的后台定时任务中（按 attempt.sweep_interval_seconds 周期执行）。
// 此脚本仅用于手动触发，例如停机维护后积压了大量过期尝试时。
//
// 用法: go run scripts/sweep_attempts.go

package main

import (
	"log"

	"edu_assessment_backend/internal/config"
	"edu_assessment_backend/internal/repository"
	"edu_assessment_backend/internal/service"
	"edu_assessment_backend/pkg/database"
	"edu_assessment_backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database, false)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	testRepo := repository.NewTestRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	accRepo := repository.NewAccreditationRepository(db)
	attemptService := service.NewAttemptService(testRepo, attemptRepo, accRepo)

	log.Println("手动触发过期尝试清理...")
	swept, err := attemptService.SweepExpiredAttempts()
	if err != nil {
		log.Fatalf("清理失败: %v", err)
	}
	log.Printf("完成，共清理 %d 条过期尝试", swept)
}
