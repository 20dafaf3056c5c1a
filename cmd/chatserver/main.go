package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/ramory-l/sockhub"
	"github.com/ramory-l/sockhub/auth"
	"github.com/ramory-l/sockhub/bus"
	"github.com/ramory-l/sockhub/bus/natsbus"
	"github.com/ramory-l/sockhub/bus/redisbus"
	"github.com/ramory-l/sockhub/chat"
)

var (
	addr     = flag.String("addr", envOr("CHAT_ADDR", ":3000"), "http service address")
	redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "redis url for the cluster bus")
	natsURL  = flag.String("nats", os.Getenv("NATS_URL"), "nats url for the cluster bus")
	debug    = flag.Bool("debug", false, "debug logging")
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("load .env", "err", err)
		os.Exit(1)
	}
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := run(logger); err != nil {
		logger.Error("chat server failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	config, err := sockhub.ConfigFromEnv(os.LookupEnv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []sockhub.Option{sockhub.WithSlog(logger)}

	b, err := clusterBus()
	if err != nil {
		return err
	}
	if b != nil {
		opts = append(opts, sockhub.WithBus(b))
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		opts = append(opts, sockhub.WithJWT(&auth.HS256{Secret: []byte(secret)}))
	}

	broker := sockhub.NewBroker(config, opts...)
	defer broker.Close()
	if err := broker.Start(ctx); err != nil {
		return err
	}

	room := broker.Of("/")
	chat.Register(room)
	room.OnConnect(func(s *sockhub.Socket) {
		logger.Info("client connected", "socket", s.ID())
	})
	room.OnDisconnect(func(s *sockhub.Socket, reason string) {
		logger.Info("client disconnected", "socket", s.ID(), "nickname", s.Nickname(), "reason", reason)
	})

	r := mux.NewRouter()
	r.PathPrefix("/socket.io/").Handler(broker)
	r.HandleFunc("/healthz", broker.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(indexHTML))
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("chat server listening", "addr", *addr, "node", broker.NodeID())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}

// clusterBus connects to Redis or NATS when configured. Redis wins when
// both are set.
func clusterBus() (bus.Bus, error) {
	switch {
	case *redisURL != "":
		opt, err := redis.ParseURL(*redisURL)
		if err != nil {
			return nil, err
		}
		return redisbus.New(redis.NewClient(opt), redisbus.DefaultChannel), nil
	case *natsURL != "":
		nc, err := nats.Connect(*natsURL, nats.MaxReconnects(5), nats.ReconnectWait(2*time.Second))
		if err != nil {
			return nil, err
		}
		return natsbus.New(nc, natsbus.DefaultSubject), nil
	default:
		return nil, nil
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>sockhub chat</title>
    <script src="https://cdn.socket.io/4.5.4/socket.io.min.js"></script>
    <style>
        body { font-family: Arial, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; overflow-y: scroll; padding: 10px; margin: 20px 0; }
        #nicknames { color: #336; }
        .message { margin: 5px 0; padding: 5px; }
        .system { color: #666; font-style: italic; }
        input, button { padding: 10px; margin: 5px; }
        input[type="text"] { width: 300px; }
    </style>
</head>
<body>
    <h1>sockhub chat</h1>
    <div id="login">
        <input type="text" id="nick" placeholder="Nickname">
        <button onclick="claim()">Join</button>
    </div>
    <div id="nicknames"></div>
    <div id="messages"></div>
    <div>
        <input type="text" id="message" placeholder="Type a message">
        <button onclick="sendMessage()">Send</button>
    </div>

    <script>
        const socket = io({ transports: ['websocket'] });

        socket.on('connect', () => addMessage('Connected to server', 'system'));
        socket.on('disconnect', () => addMessage('Disconnected from server', 'system'));

        socket.on('announcement', (a) => {
            addMessage(a.user + ' ' + a.action, 'system');
        });

        socket.on('nicknames', (table) => {
            document.getElementById('nicknames').textContent = 'Online: ' + Object.keys(table).join(', ');
        });

        socket.on('user message', (m) => {
            addMessage(m.user + ': ' + m.message, 'message');
        });

        function claim() {
            const nickname = document.getElementById('nick').value;
            if (!nickname) return;
            socket.emit('nickname', { nickname: nickname }, (taken) => {
                if (taken) {
                    addMessage('Nickname ' + nickname + ' is taken', 'system');
                    return;
                }
                document.getElementById('login').style.display = 'none';
            });
        }

        function sendMessage() {
            const message = document.getElementById('message').value;
            if (!message) return;
            socket.emit('user message', { message: message });
            addMessage('me: ' + message, 'message');
            document.getElementById('message').value = '';
        }

        function addMessage(text, className) {
            const messages = document.getElementById('messages');
            const div = document.createElement('div');
            div.className = 'message ' + className;
            div.textContent = text;
            messages.appendChild(div);
            messages.scrollTop = messages.scrollHeight;
        }
    </script>
</body>
</html>`
