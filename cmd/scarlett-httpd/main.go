// Command scarlett-httpd serves a read-only JSON view of an attached
// Scarlett interface's current state over HTTP. It is meant for dashboards
// and automation, not for control: every route is a GET.
//
// Grounded on the teacher's API server (cmd/driver/hasher-host/main.go,
// runAPIServer): a gin.New router in release mode with gin.Recovery,
// routes grouped under /api/v1, an http.Server run in a goroutine, and a
// signal-triggered graceful Shutdown with a bounded context timeout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/focusrite-scarlett/ctld/internal/driver/device"
	"github.com/focusrite-scarlett/ctld/internal/scarlett/registry"
)

var (
	port      = flag.Int("port", 8008, "HTTP listen port")
	productID = flag.Uint("product", 0, "USB product ID to attach (0 = first recognised device)")
)

func main() {
	flag.Parse()

	dev, err := attach(uint16(*productID))
	if err != nil {
		log.Fatalf("attach: %v", err)
	}
	defer dev.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/health", handleHealth)
		api.GET("/device", deviceHandler(dev))
		api.GET("/volumes", volumesHandler(dev))
		api.GET("/meters", metersHandler(dev))
		api.GET("/stats", statsHandler(dev))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	go func() {
		log.Printf("scarlett-httpd listening on :%d", *port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}

// attach opens the requested product ID, or the first model the registry
// recognises among commonly attached IDs when none is given.
func attach(productID uint16) (*device.Device, error) {
	if productID != 0 {
		return device.Open(registry.VendorID, productID)
	}
	for pid := range registry.ByProductID {
		if d, err := device.Open(registry.VendorID, pid); err == nil {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no supported Scarlett interface found")
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func deviceHandler(dev *device.Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := dev.Info()
		c.JSON(http.StatusOK, gin.H{
			"name":        info.Name,
			"vendor_id":   info.VendorID,
			"product_id":  info.ProductID,
			"gen":         info.Gen,
			"sync_locked": info.SyncLocked,
		})
	}
}

func volumesHandler(dev *device.Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := dev.Control.RefreshVolumes(); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		dev.Store.Mu.Lock()
		vol := append([]int(nil), dev.Store.Vol...)
		mute := append([]bool(nil), dev.Store.MuteSwitch...)
		swHw := append([]bool(nil), dev.Store.VolSwHwSwitch...)
		master := dev.Store.MasterVol
		dev.Store.Mu.Unlock()
		c.JSON(http.StatusOK, gin.H{
			"volumes":      vol,
			"mute":         mute,
			"sw_hw_switch": swHw,
			"master":       master,
		})
	}
}

func metersHandler(dev *device.Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		levels, err := dev.Control.MeterLevels(dev.Model.MeterCount)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"levels": levels})
	}
}

func statsHandler(dev *device.Device) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := dev.Stats()
		c.JSON(http.StatusOK, gin.H{
			"total_commands":   s.TotalCommands,
			"total_bytes":      s.TotalBytes,
			"total_latency_ns": s.TotalLatencyNs,
			"peak_latency_ns":  s.PeakLatencyNs,
			"error_count":      s.ErrorCount,
		})
	}
}
