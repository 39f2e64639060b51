// Command mcp-weather runs a small MCP server exposing a getWeather tool
// over streamable HTTP, for trying toolloop's MCP integration end to end.
//
// Configuration:
//
//	PORT                - Listen port (default: 8080)
//	MCP_WEATHER_API_KEY - When set, requests must carry it in X-API-Key or
//	                      as an Authorization bearer token
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/toolloop/pkg/auth"
	"github.com/rhuss/toolloop/pkg/auth/apikey"
	"github.com/rhuss/toolloop/pkg/observability"
)

// forecasts is the canned weather per lower-cased city name.
var forecasts = map[string]string{
	"shanghai": "Sunny, 22C",
	"berlin":   "Cloudy, 14C",
	"london":   "Light rain, 12C",
	"new york": "Clear, 18C",
}

// WeatherInput is the getWeather argument schema.
type WeatherInput struct {
	City string `json:"city" jsonschema:"the city to report on"`
	Days int    `json:"days,omitempty" jsonschema:"number of forecast days, defaults to 1"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "toolloop-weather", Version: "v1.0.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "getWeather",
		Description: "Returns the current weather for a city",
	}, getWeather)

	var handler http.Handler = mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)
	if key := os.Getenv("MCP_WEATHER_API_KEY"); key != "" {
		chain := &auth.Chain{
			Authenticators: []auth.Authenticator{
				apikey.New("X-API-Key", []apikey.Key{{Key: key, Identity: auth.Identity{Subject: "mcp-client"}}}),
			},
			Default: auth.No,
		}
		handler = auth.Middleware(chain, nil, nil)(handler)
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", observability.MetricsMiddleware("mcp", handler))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mcp weather server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp weather server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func getWeather(_ context.Context, _ *mcp.CallToolRequest, in WeatherInput) (*mcp.CallToolResult, any, error) {
	forecast, ok := forecasts[strings.ToLower(strings.TrimSpace(in.City))]
	if !ok {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("no weather data for %s", in.City)}},
		}, nil, nil
	}

	text := forecast
	if in.Days > 1 {
		text = fmt.Sprintf("%s, similar for the next %d days", forecast, in.Days-1)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}
