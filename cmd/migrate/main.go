package main

import (
	"encoding/json"
	"flag"

	"github.com/bhanukaranwal/SetuBond/config"
	"github.com/bhanukaranwal/SetuBond/pkg/infra"
	"go.uber.org/zap"
)

func main() {
	var configFile string
	var down int
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.IntVar(&down, "down", 0, "Roll back this many steps instead of migrating up")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}
	if cfg.OmsDB == nil {
		zap.S().Fatal("oms_db is not configured")
	}

	configBytes, err := json.MarshalIndent(cfg.OmsDB, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert config to JSON: %v", err)
	} else {
		zap.S().Debugf("load config %s", string(configBytes))
	}

	mgTool := infra.GetMigrateTool()
	if down > 0 {
		err = mgTool.Down(cfg.OmsDB.MigrationSource, cfg.OmsDB.MigrationConnURL, down)
	} else {
		err = mgTool.Migrate(cfg.OmsDB.MigrationSource, cfg.OmsDB.MigrationConnURL)
	}
	if err != nil {
		zap.S().Fatalf("migration failed: %v", err)
	}
}
