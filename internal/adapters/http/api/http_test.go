package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/dosewatch/internal/adapters/chart"
	"github.com/okian/dosewatch/internal/adapters/http/api"
	"github.com/okian/dosewatch/internal/adapters/repository"
	service "github.com/okian/dosewatch/internal/app"
	"github.com/okian/dosewatch/internal/domain/filter"
	"github.com/okian/dosewatch/internal/domain/types"
	"github.com/okian/dosewatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const doses = "Booked Date,Exam Name,Dosage,Age Group\n" +
	"01/01/2023,CT Head,10,18-40\n" +
	"02/01/2023,CT Head,11,18-40\n" +
	"03/01/2023,CT Head,12,41-65\n" +
	"04/01/2023,CT Head,0,41-65\n" +
	"05/01/2023,CT Head,,18-40\n" +
	"06/01/2023,CT Abdo,20,65+\n" +
	"07/01/2023,CT Abdo,22,65+\n" +
	"08/01/2023,CT Abdo,21,18-40\n"

// newMux serves the API over a started service and returns the output path.
func newMux(t *testing.T) (*http.ServeMux, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "CT_doses.csv")
	if err := os.WriteFile(in, []byte(doses), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	out := filepath.Join(dir, "updated_CT_doses.csv")
	svc := service.New(
		service.WithDatasetPath(in),
		service.WithOutputPath(out),
		service.WithLogger(logger.Nop()),
		service.WithRenderer(chart.New(chart.WithSize(320, 200))),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	return mux, out
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestServer_ReadEndpoints(t *testing.T) {
	Convey("Given the API over a loaded dataset", t, func() {
		mux, _ := newMux(t)

		Convey("When requesting the filter options", func() {
			w := do(mux, http.MethodGet, "/api/options", "")
			opts := decode[types.Options](w)

			Convey("Then the choices carry the All sentinel", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(opts.Exams, ShouldResemble, []string{"All", "CT Head", "CT Abdo"})
				So(opts.DateMin.String(), ShouldEqual, "2023-01-01")
				So(opts.DateMax.String(), ShouldEqual, "2023-01-08")
			})
		})

		Convey("When filtering records by query", func() {
			w := do(mux, http.MethodGet, "/api/records?exam=CT+Abdo&from=2023-01-07&age=All", "")
			view := decode[types.RecordsView](w)

			Convey("Then only matching records are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(view.Count, ShouldEqual, 2)
				So(view.Records[0].BookedDate.String(), ShouldEqual, "2023-01-07")
			})
		})

		Convey("When nothing matches", func() {
			w := do(mux, http.MethodGet, "/api/records?exam=CT+Chest", "")
			view := decode[types.RecordsView](w)
			So(view.Count, ShouldEqual, 0)
			So(view.Message, ShouldEqual, types.NoDataMessage)
		})

		Convey("When a date is malformed", func() {
			w := do(mux, http.MethodGet, "/api/outliers?from=07/01/2023", "")
			body := decode[errorBody](w)

			Convey("Then the request is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(body.Code, ShouldEqual, "bad_request")
				So(body.Message, ShouldContainSubstring, "YYYY-MM-DD")
			})
		})

		Convey("When listing outliers", func() {
			w := do(mux, http.MethodGet, "/api/outliers", "")
			view := decode[types.OutliersView](w)

			Convey("Then the worklist and exam statistics are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(view.Count, ShouldEqual, 2)
				So(*view.Rows[0].MeanExaminationDose, ShouldEqual, 8.3)
				So(len(view.Stats), ShouldEqual, 2)
			})
		})

		Convey("When rendering charts", func() {
			w := do(mux, http.MethodGet, "/api/charts/histogram.png?exam=CT+Head", "")

			Convey("Then a PNG is served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "image/png")
				cfg, err := png.DecodeConfig(w.Body)
				So(err, ShouldBeNil)
				So(cfg.Width, ShouldEqual, 320)
			})

			Convey("And an empty selection yields no content", func() {
				w := do(mux, http.MethodGet, "/api/charts/scatter.png?exam=CT+Chest", "")
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(w.Header().Get("X-Dosewatch-Message"), ShouldEqual, types.NoDataMessage)
				So(w.Body.Len(), ShouldEqual, 0)
			})
		})

		Convey("When requesting stats and health", func() {
			stats := do(mux, http.MethodGet, "/stats", "")
			So(stats.Code, ShouldEqual, http.StatusOK)
			So(decode[map[string]any](stats)["records"], ShouldEqual, float64(8))

			health := do(mux, http.MethodGet, "/healthz", "")
			So(health.Code, ShouldEqual, http.StatusOK)
			So(health.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("When scraping metrics from the health endpoint", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
			req.Header.Set("Accept", "text/plain")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "dosewatch_review_")
		})

		Convey("When opening the dashboard", func() {
			w := do(mux, http.MethodGet, "/dashboard", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "/api/outliers")
		})

		Convey("When using the wrong method", func() {
			w := do(mux, http.MethodPost, "/api/records", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestServer_Sessions(t *testing.T) {
	Convey("Given the API over a loaded dataset", t, func() {
		mux, out := newMux(t)

		Convey("When a reviewer opens a session", func() {
			w := do(mux, http.MethodPost, "/api/sessions", `{"exam":"All","age":"All","from":null,"to":null}`)
			sess := decode[types.SessionView](w)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Header().Get("Location"), ShouldEqual, "/api/sessions/"+sess.ID)
			So(sess.Count, ShouldEqual, 2)
			base := "/api/sessions/" + sess.ID

			Convey("And corrects a dosage and a date", func() {
				w := do(mux, http.MethodPatch, base+"/rows/1", `{"dosage":14.5,"booked_date":"2023-01-06"}`)
				row := decode[types.Row](w)

				Convey("Then the row is updated and the mean is untouched", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					So(*row.Dosage, ShouldEqual, 14.5)
					So(row.BookedDate.String(), ShouldEqual, "2023-01-06")
					So(*row.MeanExaminationDose, ShouldEqual, 8.3)

					got := decode[types.SessionView](do(mux, http.MethodGet, base, ""))
					So(got.Edits, ShouldEqual, 1)
				})

				Convey("And committing writes the output file", func() {
					w := do(mux, http.MethodPost, base+"/commit", "")
					res := decode[types.CommitResult](w)
					So(w.Code, ShouldEqual, http.StatusOK)
					So(res.Rows, ShouldEqual, 2)

					data, err := os.ReadFile(out)
					So(err, ShouldBeNil)
					So(string(data), ShouldEqual,
						"Booked Date,Exam Name,Dosage,Age Group,Mean Examination Dose\n"+
							"04/01/2023,CT Head,0,41-65,8.3\n"+
							"06/01/2023,CT Head,14.5,18-40,8.3\n")
				})
			})

			Convey("And sends an invalid patch", func() {
				cases := []struct {
					name string
					body string
				}{
					{"negative dosage", `{"dosage":-1}`},
					{"dosage with clear", `{"dosage":1,"clear_dosage":true}`},
					{"empty exam name", `{"exam_name":""}`},
					{"unknown field", `{"dose":1}`},
					{"bad date", `{"booked_date":"06/01/2023"}`},
					{"no change", `{}`},
				}
				for _, tc := range cases {
					w := do(mux, http.MethodPatch, base+"/rows/0", tc.body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decode[errorBody](w).Code, ShouldEqual, "bad_request")
				}
			})

			Convey("And addresses a row that does not exist", func() {
				So(do(mux, http.MethodPatch, base+"/rows/9", `{"dosage":1}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(mux, http.MethodPatch, base+"/rows/x", `{"dosage":1}`).Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And deletes it", func() {
				So(do(mux, http.MethodDelete, base, "").Code, ShouldEqual, http.StatusNoContent)
				So(do(mux, http.MethodGet, base, "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the worklist is empty", func() {
			sess := decode[types.SessionView](do(mux, http.MethodPost, "/api/sessions", `{"exam":"CT Abdo"}`))
			w := do(mux, http.MethodPost, "/api/sessions/"+sess.ID+"/commit", "")

			Convey("Then committing conflicts", func() {
				So(sess.Message, ShouldEqual, types.NoDataMessage)
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode[errorBody](w).Code, ShouldEqual, "conflict")
			})
		})

		Convey("When the session is unknown", func() {
			w := do(mux, http.MethodPost, "/api/sessions/missing/commit", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode[errorBody](w).Code, ShouldEqual, "not_found")
		})

		Convey("When the criteria body is malformed", func() {
			w := do(mux, http.MethodPost, "/api/sessions", `{"from":"yesterday"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

type failingDeps struct {
	err error
}

func (f failingDeps) Options(context.Context) types.Options { return types.Options{} }

func (f failingDeps) Records(context.Context, filter.Criteria) types.RecordsView {
	return types.RecordsView{}
}

func (f failingDeps) Outliers(context.Context, filter.Criteria) types.OutliersView {
	return types.OutliersView{}
}

func (f failingDeps) Histogram(context.Context, filter.Criteria, io.Writer) error { return f.err }

func (f failingDeps) Scatter(_ context.Context, _ filter.Criteria, w io.Writer) error {
	_, _ = w.Write([]byte("partial"))
	return f.err
}

func (f failingDeps) CreateSession(context.Context, filter.Criteria) (types.SessionView, error) {
	return types.SessionView{}, f.err
}

func (f failingDeps) Session(context.Context, string) (types.SessionView, error) {
	return types.SessionView{}, f.err
}

func (f failingDeps) EditRow(context.Context, string, int, repository.Patch) (types.Row, error) {
	return types.Row{}, f.err
}

func (f failingDeps) Commit(context.Context, string) (types.CommitResult, error) {
	return types.CommitResult{}, f.err
}

func (f failingDeps) DeleteSession(context.Context, string) error { return f.err }

func (f failingDeps) GetStats() map[string]interface{} { return map[string]interface{}{} }

func TestServer_ErrorMapping(t *testing.T) {
	Convey("Given handlers whose dependencies fail", t, func() {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
			{service.ErrNotStarted, http.StatusServiceUnavailable, "not_ready"},
			{repository.ErrSessionNotFound, http.StatusNotFound, "not_found"},
			{service.ErrEmptyWorklist, http.StatusConflict, "conflict"},
			{repository.ErrEmptyPatch, http.StatusBadRequest, "bad_request"},
		}
		for _, tc := range cases {
			mux := http.NewServeMux()
			api.NewServer(failingDeps{err: tc.err}, failingDeps{}).Register(context.Background(), mux)

			w := do(mux, http.MethodPost, "/api/sessions/abc/commit", "")
			So(w.Code, ShouldEqual, tc.status)
			body := decode[errorBody](w)
			So(body.Code, ShouldEqual, tc.code)
			So(body.Message, ShouldContainSubstring, tc.err.Error())
		}

		Convey("When a chart fails after writing", func() {
			mux := http.NewServeMux()
			api.NewServer(failingDeps{err: errors.New("render")}, failingDeps{}).Register(context.Background(), mux)
			w := do(mux, http.MethodGet, "/api/charts/scatter.png", "")

			Convey("Then no partial image is sent", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldNotContainSubstring, "partial")
			})
		})
	})
}

func TestError(t *testing.T) {
	Convey("Given API errors", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("edit row", api.ErrBadRequest, cause)

		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "edit row: bad request: boom")
		So(api.Wrap("op", nil), ShouldBeNil)
		So(api.NewKind("op", api.ErrNotFound).Error(), ShouldEqual, "op: not found")
		So(errors.Is(api.WrapKind("op", api.ErrConflict, nil), api.ErrConflict), ShouldBeTrue)
	})
}
