package shield_test

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/audioscribe/dbopen"
	"github.com/hazyhaar/audioscribe/shield"
)

func ExampleAPIStack() {
	db, err := dbopen.Open(":memory:", dbopen.WithSchema(shield.Schema))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := chi.NewRouter()
	stack, rl := shield.APIStack(db, 64<<20)
	for _, mw := range stack {
		r.Use(mw)
	}
	rl.StartReloader(ctx.Done())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	fmt.Println(rec.Code, rec.Header().Get("X-Content-Type-Options"))
	// Output: 200 nosniff
}
