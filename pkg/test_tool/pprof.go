package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"hospital_chat_service/pkg/config"
	"hospital_chat_service/pkg/logger"
)

// PprofAddr pprof 只監聽本機
const PprofAddr = "127.0.0.1:6060"

// StartPprof 非 production 且 debug 模式開啟時啟動 pprof
func StartPprof() {
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return
	}
	if !logger.Log.IsDebugMode() {
		return
	}

	go func() {
		logger.Log.Info("Starting pprof server on " + PprofAddr)
		if err := http.ListenAndServe(PprofAddr, nil); err != nil {
			logger.Log.Infof("pprof server failed: %v", err)
		}
	}()
}

// 常用分析:
// 	go tool pprof http://127.0.0.1:6060/debug/pprof/goroutine   每條 websocket 連線有 read/write 兩個 goroutine
// 	go tool pprof http://127.0.0.1:6060/debug/pprof/heap
