package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// webhookEvent is the wire shape of one inbound event in a webhook batch.
type webhookEvent struct {
	Type       string `json:"type"` // "text" or "button"
	UserID     string `json:"userId"`
	ReplyToken string `json:"replyToken"`
	Text       string `json:"text,omitempty"`
	Data       string `json:"data,omitempty"`
}

// webhookBody is the JSON body the chat platform POSTs to the webhook.
type webhookBody struct {
	Events []webhookEvent `json:"events"`
}

// ServerOpts holds configuration for the webhook server.
type ServerOpts struct {
	Handler Handler
	Port    int
	Path    string
	Out     io.Writer
}

// StartServer launches the inbound webhook HTTP server. The platform is
// acked as soon as the batch parses; each event is then handled on its
// own goroutine, because the platform neither serializes per-user
// delivery nor waits for processing before retrying. Blocks until ctx is
// cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, opts ServerOpts) error {
	if opts.Handler == nil {
		return fmt.Errorf("chat: webhook server: handler is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8700
	}
	if opts.Path == "" {
		opts.Path = "/webhook"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST(opts.Path, handleWebhook(ctx, opts.Handler))
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Webhook listening on :%d%s\n", opts.Port, opts.Path)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("chat: webhook server: %w", err)
	}
	return nil
}

// handleWebhook parses an event batch and dispatches each event.
func handleWebhook(ctx context.Context, handler Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body webhookBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event batch"})
			return
		}

		for _, ev := range body.Events {
			switch ev.Type {
			case "text":
				go handler.HandleText(ctx, TextEvent{
					UserID:     ev.UserID,
					ReplyToken: ev.ReplyToken,
					Text:       ev.Text,
				})
			case "button":
				go handler.HandleButton(ctx, ButtonEvent{
					UserID:     ev.UserID,
					ReplyToken: ev.ReplyToken,
					Data:       ev.Data,
				})
			}
			// Unknown event types are acked and dropped.
		}

		c.Status(http.StatusOK)
	}
}
