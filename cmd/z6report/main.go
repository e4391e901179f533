package main

import (
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/copyleftdev/z6sim/pkg/utils"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	ledgerPath := utils.EnvOrDefault("Z6SIM_LEDGER_PATH", "./run.z6log")
	addr := utils.EnvOrDefault("Z6SIM_REPORT_BIND", ":8081")

	svc, err := NewReportService(ledgerPath)
	if err != nil {
		log.Fatalf("load report: %v", err)
	}
	publishMetrics(svc.Metrics())

	srv := NewServer(addr, svc)
	log.Infof("z6report listening on %s, serving %s", addr, ledgerPath)
	if err := srv.Start(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
