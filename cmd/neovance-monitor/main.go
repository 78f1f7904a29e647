package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neovance-monitor/internal/alert"
	"neovance-monitor/internal/cache"
	"neovance-monitor/internal/classifier"
	"neovance-monitor/internal/common/database"
	"neovance-monitor/internal/common/logger"
	commonmqtt "neovance-monitor/internal/common/mqtt"
	"neovance-monitor/internal/config"
	"neovance-monitor/internal/models"
	"neovance-monitor/internal/orchestrator"
	"neovance-monitor/internal/publisher"
	"neovance-monitor/internal/repository"
	"neovance-monitor/internal/simulator"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "neovance-monitor")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	tenantID := os.Getenv("TENANT_ID")
	if tenantID == "" {
		tenantID = "demo-nicu"
		log.Warn("TENANT_ID not set, using demo tenant", zap.String("tenant_id", tenantID))
	}

	// 3. 连接postgres
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	alertRepo := repository.NewAlertRepository(db, log)
	patientRepo := repository.NewPatientRepository(db, log)

	// 4. 加载病区名单，空库时写入演示种子数据
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roster, err := patientRepo.ListPatients(ctx, tenantID)
	if err != nil {
		log.Fatal("Failed to load patient roster", zap.Error(err))
	}
	if len(roster) == 0 {
		log.Info("patient roster empty, seeding demo patients", zap.String("tenant_id", tenantID))
		if err := patientRepo.SeedDemoRoster(ctx, tenantID); err != nil {
			log.Fatal("Failed to seed demo roster", zap.Error(err))
		}
		roster = models.DemoRoster(tenantID)
	}

	// 5. 连接redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	cacheMgr := cache.NewManager(cfg, redisClient, log)

	// 6. 可选：MQTT事件发布
	var alertPub *publisher.AlertPublisher
	if cfg.Publisher.Enabled {
		mqttClient, err := commonmqtt.NewClient(&cfg.MQTT)
		if err != nil {
			log.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		defer mqttClient.Disconnect()
		alertPub = publisher.NewAlertPublisher(mqttClient, cfg.Publisher.TopicPrefix, log)
	}

	// 7. 报警管理器：状态迁移确定后持久化并发布，失败只记录日志
	alertMgr := alert.NewManager(alert.Config{
		Threshold:          models.SeverityCritical,
		ReEscalationWindow: cfg.Monitor.ReEscalationWindow,
	}, log, func(evt models.AlertEvent) {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer saveCancel()

		if err := alertRepo.SaveEvent(saveCtx, evt); err != nil {
			log.Error("Failed to persist alert event",
				zap.String("alert_id", evt.Alert.AlertID),
				zap.String("event_type", string(evt.EventType)),
				zap.Error(err))
		}
		if alertPub != nil {
			if err := alertPub.PublishEvent(evt); err != nil {
				log.Error("Failed to publish alert event",
					zap.String("alert_id", evt.Alert.AlertID),
					zap.Error(err))
			}
		}
	})

	// 8. 编排器
	popOpts := []orchestrator.Option{orchestrator.WithCache(cacheMgr)}
	if cfg.Classifier.Enabled {
		clf := classifier.NewClient(cfg.Classifier.URL, cfg.Classifier.Timeout, log)
		if err := clf.Healthy(ctx); err != nil {
			log.Warn("Classifier not reachable at startup, will fall back to rule-based category", zap.Error(err))
		}
		popOpts = append(popOpts, orchestrator.WithClassifier(clf))
	}

	simFactory := func(p models.Patient) *simulator.Simulator {
		return simulator.NewSimulator(
			p.Maternal.GADecimal(),
			simulator.Config{
				AcuteAfter:         cfg.Monitor.AcuteAfter,
				Momentum:           0.8,
				PlateauProbability: 0.15,
				RecoveryRate:       0.2,
			},
			rand.New(rand.NewSource(time.Now().UnixNano())),
			time.Now(),
		)
	}

	pop := orchestrator.NewPopulation(cfg, tenantID, roster, simFactory, alertMgr, log, popOpts...)

	// 9. 启动评估循环并等待信号
	done := make(chan struct{})
	go func() {
		pop.Run(ctx)
		close(done)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	cancel()
	<-done

	log.Info("Monitor service stopped")
}
