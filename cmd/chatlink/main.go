package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"

	"github.com/kickdeal/chatlink/internal/api"
	"github.com/kickdeal/chatlink/internal/auth"
	"github.com/kickdeal/chatlink/internal/client"
	"github.com/kickdeal/chatlink/internal/config"
	"github.com/kickdeal/chatlink/internal/stats"
)

var (
	roomId       string
	brokerURL    string
	apiURL       string
	tokenFile    string
	statsAddr    string
	manualRetry  bool
	fixedRetryMs int
)

func main() {
	flag.StringVar(&roomId, "room", "", "chat room id to join")
	flag.StringVar(&brokerURL, "broker-url", "", "websocket broker URL (overrides CHATLINK_BROKER_URL)")
	flag.StringVar(&apiURL, "api-url", "", "REST API base URL (overrides CHATLINK_API_URL)")
	flag.StringVar(&tokenFile, "token-file", "", "path to the bearer token file")
	flag.StringVar(&statsAddr, "stats-addr", "", "address for the debug stats listener")
	flag.BoolVar(&manualRetry, "manual-retry", false, "disable automatic reconnection")
	flag.IntVar(&fixedRetryMs, "fixed-retry-ms", 0, "use a fixed reconnect delay instead of exponential backoff")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatlink] ", log.LstdFlags)

	if roomId == "" {
		logger.Fatal("a room id is required (-room)")
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("config: ", err)
	}

	creds := &auth.FileStore{Path: cfg.TokenFile}
	token, err := creds.Token()
	if err != nil {
		logger.Fatal("credential: ", err, " (log in and write the token to ", cfg.TokenFile, ")")
	}

	selfId, err := auth.UserId(token)
	if err != nil {
		logger.Println("token carries no user id, falling back to /users/info")
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	if cfg.StatsAddr != "" {
		go func() {
			h := handlers.LoggingHandler(os.Stderr, handlers.CompressHandler(mux))
			logger.Printf("stats listening on %s", cfg.StatsAddr)
			if err := http.ListenAndServe(cfg.StatsAddr, h); err != nil {
				logger.Println("stats server:", err)
			}
		}()
	}

	restClient := api.NewClient(cfg.APIBaseURL, creds, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	room, err := restClient.GetRoom(ctx, roomId)
	if err != nil {
		cancel()
		if api.IsUnauthorized(err) {
			logger.Fatal("session expired, log in again")
		}
		logger.Fatal("load room: ", err)
	}

	if selfId == 0 {
		user, err := restClient.GetUserInfo(ctx)
		if err != nil {
			cancel()
			logger.Fatal("load user: ", err)
		}
		selfId = user.Id
	}

	history, err := restClient.GetMessages(ctx, roomId)
	cancel()
	if err != nil {
		logger.Fatal("load history: ", err)
	}

	session := client.NewSession(roomId, cfg.BrokerURL, creds, reconnectPolicy(), statsUpdater, logger)
	session.ConnectTimeout = cfg.ConnectTimeout
	defer session.Close()

	session.Backlog().Replace(history)

	fmt.Printf("%s (%d won) - %d earlier messages\n", room.ProductTitle, room.Price, len(history))
	for _, msg := range history {
		printMessage(msg.SenderName, msg.Content, msg.SenderId == selfId)
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout+time.Second)
	err = session.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Fatal("connect: ", err)
	}

	go consumeEvents(session, selfId)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		readInput(session, logger)
	}()

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case <-inputDone:
	}

	logger.Println("shutdown complete")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		// Fall back to flag-only configuration when the environment is
		// not set up.
		cfg, err = config.NewConfig(brokerURL, apiURL, tokenFile)
		if err != nil {
			return nil, err
		}
	}

	if brokerURL != "" {
		cfg.BrokerURL = brokerURL
	}
	if apiURL != "" {
		cfg.APIBaseURL = apiURL
	}
	if tokenFile != "" {
		cfg.TokenFile = tokenFile
	}
	if statsAddr != "" {
		cfg.StatsAddr = statsAddr
	}

	return cfg, nil
}

func reconnectPolicy() client.Backoff {
	if manualRetry {
		return nil
	}
	if fixedRetryMs > 0 {
		return &client.FixedBackoff{Delay: time.Duration(fixedRetryMs) * time.Millisecond}
	}
	return client.DefaultBackoff()
}

func consumeEvents(session *client.Session, selfId int) {
	for ev := range session.Events() {
		switch {
		case ev.Message != nil:
			printMessage(ev.Message.SenderName, ev.Message.Content, ev.Message.SenderId == selfId)
			if ev.Message.SenderId != selfId {
				session.MarkRead(context.Background(), ev.Message.Id)
			}
		case ev.Typing != nil:
			if ev.Typing.IsTyping {
				fmt.Println("* peer is typing...")
			}
		case ev.PeerJoined != nil:
			fmt.Printf("* %s joined\n", ev.PeerJoined.Username)
		case ev.PeerLeft != nil:
			fmt.Printf("* %s left\n", ev.PeerLeft.Username)
		case ev.State != nil:
			fmt.Printf("* connection %s\n", ev.State.New)
		}
	}
}

func printMessage(sender, content string, mine bool) {
	if mine {
		fmt.Printf("          you: %s\n", content)
	} else {
		fmt.Printf("%13s: %s\n", sender, content)
	}
}

func readInput(session *client.Session, logger *log.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/typing":
			session.SetTyping(context.Background(), true)
		case strings.HasPrefix(line, "/read "):
			id, err := strconv.Atoi(strings.TrimPrefix(line, "/read "))
			if err != nil {
				logger.Println("usage: /read <message-id>")
				continue
			}
			session.MarkRead(context.Background(), id)
		default:
			if !session.SendMessage(context.Background(), line) {
				logger.Println("message not sent, try again")
			}
		}
	}
}
