// Package anomaly implements the sinks that anomaly records are flushed to.
package anomaly

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/factory"
	"BehaviorSpectra/internal/model"
	"BehaviorSpectra/internal/notification"
	"fmt"
	"log"
	"time"
)

func init() {
	factory.RegisterWriter("text", func(def config.WriterDef, interval time.Duration, _ *config.Config) (model.Writer, error) {
		if def.Text.RootPath == "" {
			return nil, fmt.Errorf("text writer requires text.root_path")
		}
		log.Printf("Text writer created at %s", def.Text.RootPath)
		return NewTextWriter(def.Text.RootPath, interval), nil
	})
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, interval time.Duration, _ *config.Config) (model.Writer, error) {
		writer, err := NewClickHouseWriter(def.ClickHouse, interval)
		if err != nil {
			return nil, err
		}
		log.Printf("ClickHouse writer created for database %s at %s:%d", def.ClickHouse.Database, def.ClickHouse.Host, def.ClickHouse.Port)
		return writer, nil
	})
	factory.RegisterWriter("email", func(_ config.WriterDef, interval time.Duration, cfg *config.Config) (model.Writer, error) {
		if cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("email writer requires an smtp section")
		}
		log.Printf("Email writer created for %s via %s:%d", cfg.SMTP.To, cfg.SMTP.Host, cfg.SMTP.Port)
		return NewEmailWriter(notification.NewEmailNotifier(cfg.SMTP), interval), nil
	})
}
