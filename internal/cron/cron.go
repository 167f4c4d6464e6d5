package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/ticketinbox/config"
	"github.com/customeros/ticketinbox/interfaces"
	cron_config "github.com/customeros/ticketinbox/internal/cron/config"
	"github.com/customeros/ticketinbox/internal/logger"
	"github.com/customeros/ticketinbox/internal/tracing"
)

const (
	JobHeartbeat       = "heartbeat"
	JobTicketInboxSync = "ticket_inbox_sync"

	LeaseName = "ticket-inbox-cron-leader"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	k8s      kubernetes.Interface
	stopCh   chan struct{}
	stopOnce sync.Once
	cronMu   sync.Mutex
	jobIDs   map[string]cronv3.EntryID
	syncSvc  interfaces.TicketInboxSyncService
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, syncSvc interfaces.TicketInboxSyncService) *CronManager {
	return &CronManager{
		cfg:     cfg,
		log:     log,
		k8s:     k8s,
		stopCh:  make(chan struct{}),
		jobIDs:  make(map[string]cronv3.EntryID),
		syncSvc: syncSvc,
	}
}

// Start runs the cron under k8s leader election so one replica triggers syncs.
// Without a k8s client it starts in local mode.
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		cm.StartCron()
		return nil
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      LeaseName,
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					cm.StartCron()
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-cm.stopCh
			cancel()
		}()
		le.Run(ctx)
	}()

	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the cron manager. It is safe to call more than once.
func (cm *CronManager) Stop() {
	cm.cronMu.Lock()
	c := cm.cron
	cm.cron = nil
	cm.cronMu.Unlock()

	if c != nil {
		cm.log.Info("Stopping cron manager")
		ctx := c.Stop()
		<-ctx.Done()
	}
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

func (cm *CronManager) cronConfig() *cron_config.Config {
	if cm.cfg != nil && cm.cfg.CronConfig != nil {
		return cm.cfg.CronConfig
	}
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}
	return &cronConfig
}

func (cm *CronManager) syncEnabled() bool {
	if cm.syncSvc == nil {
		return false
	}
	return cm.cfg == nil || cm.cfg.MailTicketSyncConfig == nil || cm.cfg.MailTicketSyncConfig.Enabled
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	cronConfig := cm.cronConfig()

	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			return err
		}
		cm.jobIDs[JobHeartbeat] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	if cronConfig.CronScheduleTicketInboxSync != "" && cm.syncEnabled() {
		id, err := c.AddFunc(cronConfig.CronScheduleTicketInboxSync, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.triggerTicketInboxSync()
		})
		if err != nil {
			return err
		}
		cm.jobIDs[JobTicketInboxSync] = id
		cm.log.Infof("Registered ticket inbox sync job with schedule: %s", cronConfig.CronScheduleTicketInboxSync)
	}

	return nil
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	if err := cm.registerJobs(c); err != nil {
		cm.log.Fatalf("Could not register cron jobs: %v", err)
	}
	c.Start()

	cm.cronMu.Lock()
	cm.cron = c
	cm.cronMu.Unlock()
}

// triggerTicketInboxSync only launches a pass, the pass itself runs in the background.
func (cm *CronManager) triggerTicketInboxSync() {
	span, _ := tracing.StartTracerSpan(context.Background(), "CronManager.triggerTicketInboxSync")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	cm.syncSvc.TriggerTicketInboxSync()
}
