package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/teal-fm/beacon/bus"
	"github.com/teal-fm/beacon/config"
	"github.com/teal-fm/beacon/db"
	"github.com/teal-fm/beacon/prefs"
	"github.com/teal-fm/beacon/service/committer"
	"github.com/teal-fm/beacon/service/feed"
	"github.com/teal-fm/beacon/service/history"
	"github.com/teal-fm/beacon/service/normalizer"
	"github.com/teal-fm/beacon/service/segmenter"
	"github.com/teal-fm/beacon/session"
)

type application struct {
	database       *db.DB
	sessionManager *session.SessionManager
	bus            *bus.Bus
	normalizer     *normalizer.Normalizer
	segmenter      *segmenter.Service
	committer      *committer.Service
	prefs          *prefs.Prefs
	deleter        *history.Deleter

	coalesceWindowMs int64
	pageLimit        int
	friendLimit      int
	feedChunkSize    int

	// one live feed aggregator per signed-in viewer, created on demand
	feedMu sync.Mutex
	feeds  map[string]*feed.Service

	// per-user ingest throttle
	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter

	// transient per-user notices (failed deletes), drained on read
	noticeMu sync.Mutex
	notices  map[string][]string
}

// addNotice queues a transient message for the user, shown once.
func (app *application) addNotice(uid, msg string) {
	app.noticeMu.Lock()
	defer app.noticeMu.Unlock()
	app.notices[uid] = append(app.notices[uid], msg)
}

// wireDeleteNotices surfaces committed deletes the store rejected. The
// entry is already visible again by the time the notice is queued.
func (app *application) wireDeleteNotices() {
	app.deleter.OnFailure(func(uid, id string, err error) {
		app.addNotice(uid, fmt.Sprintf("Couldn't delete history entry %s", id))
	})
}

// JSON API handlers

func jsonResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (app *application) feedFor(uid string) (*feed.Service, error) {
	app.feedMu.Lock()
	defer app.feedMu.Unlock()

	if f, ok := app.feeds[uid]; ok {
		return f, nil
	}

	f := feed.New(app.database, uid, app.feedChunkSize)
	if err := f.Start(); err != nil {
		return nil, err
	}
	app.feeds[uid] = f
	return f, nil
}

func (app *application) limiterFor(uid string) *rate.Limiter {
	app.limitMu.Lock()
	defer app.limitMu.Unlock()

	if l, ok := app.limiters[uid]; ok {
		return l
	}

	l := rate.NewLimiter(rate.Limit(viper.GetFloat64("ingest.rate_per_sec")), viper.GetInt("ingest.burst"))
	app.limiters[uid] = l
	return l
}

func main() {
	config.Load()

	os.Mkdir("./data", 0755)

	database, err := db.New(viper.GetString("db.path"))
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}

	if err := database.Initialize(); err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}

	sessionManager := session.NewSessionManager(database)

	// --- Service Initializations ---

	userPrefs := prefs.New(database)
	commitService := committer.New(database, userPrefs)
	segmentService := segmenter.New(viper.GetInt64("segmenter.min_play_ms"), commitService)

	grace := time.Duration(viper.GetInt64("undo.grace_ms")) * time.Millisecond
	deleter := history.NewDeleter(database, grace)

	app := &application{
		database:         database,
		sessionManager:   sessionManager,
		bus:              bus.New(),
		normalizer:       normalizer.New(),
		segmenter:        segmentService,
		committer:        commitService,
		prefs:            userPrefs,
		deleter:          deleter,
		coalesceWindowMs: viper.GetInt64("history.coalesce_window_ms"),
		pageLimit:        viper.GetInt("history.page_limit"),
		friendLimit:      viper.GetInt("history.friend_limit"),
		feedChunkSize:    viper.GetInt("feed.chunk_size"),
		feeds:            make(map[string]*feed.Service),
		limiters:         make(map[string]*rate.Limiter),
		notices:          make(map[string][]string),
	}
	app.wireDeleteNotices()

	serverAddr := fmt.Sprintf("%s:%s", viper.GetString("server.host"), viper.GetString("server.port"))
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-shutdown
		log.Println("Shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		server.Shutdown(ctx)

		// drain pending segments and deletes before the store goes away
		if err := app.segmenter.Shutdown(ctx); err != nil {
			log.Printf("Segmenter shutdown: %v", err)
		}
		app.committer.Wait()
		app.deleter.Shutdown()

		app.feedMu.Lock()
		for _, f := range app.feeds {
			f.Stop()
		}
		app.feedMu.Unlock()

		database.Close()
		os.Exit(0)
	}()

	fmt.Printf("Server running at: http://%s\n", serverAddr)
	log.Fatal(server.ListenAndServe())
}
