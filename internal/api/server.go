package api

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer creates and returns a configured *http.Server for the projection API.
func NewServer(port int, reader ProjectionReader, refresher Refresher, allowedOrigins []string) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(reader, refresher, allowedOrigins),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute, // refresh runs a whole league batch
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
