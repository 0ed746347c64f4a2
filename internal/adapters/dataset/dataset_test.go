package dataset_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/dosewatch/internal/adapters/dataset"
	"github.com/okian/dosewatch/internal/domain/outlier"
	"github.com/okian/dosewatch/internal/domain/record"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = "\xef\xbb\xbfBooked Date,Exam Name,Dosage,Age Group,Scanner\n" +
	"03/01/2023,CT Head,10.5,18-40,A\n" +
	"not a date,CT Head,,41-65,B\n" +
	"4/1/2023,CT Abdo,abc,65+,A\n" +
	",,,,\n" +
	"05/01/2023,CT Abdo,0,65+\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	Convey("Given a CSV dataset on disk", t, func() {
		path := writeFile(t, "doses.csv", sampleCSV)
		loader := dataset.NewLoader()

		Convey("When loading it", func() {
			table, rep, err := loader.Load(context.Background(), path)

			Convey("Then records are parsed with degraded values as nil", func() {
				So(err, ShouldBeNil)
				So(table.Columns, ShouldResemble, []string{"Booked Date", "Exam Name", "Dosage", "Age Group", "Scanner"})
				So(len(table.Records), ShouldEqual, 4)

				first := table.Records[0]
				So(first.ExamName, ShouldEqual, "CT Head")
				So(*first.Dosage, ShouldEqual, 10.5)
				So(first.BookedDate.Day(), ShouldEqual, 3)
				So(first.BookedDate.Month(), ShouldEqual, time.January)
				So(first.Extra["Scanner"], ShouldEqual, "A")

				So(table.Records[1].BookedDate, ShouldBeNil)
				So(table.Records[1].Dosage, ShouldBeNil)
				So(table.Records[2].Dosage, ShouldBeNil)
				So(*table.Records[3].Dosage, ShouldEqual, 0)
			})

			Convey("And the parse report counts the degradations", func() {
				So(rep.Rows, ShouldEqual, 4)
				So(rep.UnparsedDates, ShouldEqual, 1)
				So(rep.EmptyDosages, ShouldEqual, 1)
				So(rep.UnparsedDosages, ShouldEqual, 1)
				So(rep.SkippedBlankRows, ShouldEqual, 1)
			})
		})
	})
}

func TestLoadNonFiniteDosage(t *testing.T) {
	Convey("Given a CT Head partition with one high dosage and a NaN cell", t, func() {
		content := "Booked Date,Exam Name,Dosage,Age Group\n"
		for i := 1; i <= 9; i++ {
			content += fmt.Sprintf("%02d/01/2023,CT Head,10,18-40\n", i)
		}
		content += "10/01/2023,CT Head,1000,18-40\n11/01/2023,CT Head,NaN,18-40\n"
		path := writeFile(t, "nan.csv", content)

		Convey("When loading it", func() {
			table, rep, err := dataset.NewLoader().Load(context.Background(), path)
			So(err, ShouldBeNil)

			Convey("Then the NaN cell is a null dosage counted as unparsed", func() {
				So(table.Records[10].Dosage, ShouldBeNil)
				So(rep.UnparsedDosages, ShouldEqual, 1)
				So(rep.EmptyDosages, ShouldEqual, 0)
			})

			Convey("And both the outlier and the null row are flagged", func() {
				flagged := outlier.Select(table.Records)
				So(len(flagged), ShouldEqual, 2)
				So(*flagged[0].Dosage, ShouldEqual, 1000)
				So(flagged[1].Dosage, ShouldBeNil)
				So(*flagged[0].MeanExaminationDose, ShouldEqual, 109)

				_, jerr := json.Marshal(flagged)
				So(jerr, ShouldBeNil)
			})
		})
	})
}

func TestLoadErrors(t *testing.T) {
	Convey("Given invalid datasets", t, func() {
		loader := dataset.NewLoader()
		ctx := context.Background()

		Convey("When a required column is missing", func() {
			path := writeFile(t, "bad.csv", "Booked Date,Exam Name,Age Group\n01/01/2023,CT Head,18-40\n")
			_, _, err := loader.Load(ctx, path)

			Convey("Then it fails with ErrMissingColumn", func() {
				So(errors.Is(err, dataset.ErrMissingColumn), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "Dosage")
			})
		})

		Convey("When the file is empty", func() {
			path := writeFile(t, "empty.csv", "")
			_, _, err := loader.Load(ctx, path)
			So(errors.Is(err, dataset.ErrEmptyDataset), ShouldBeTrue)
		})

		Convey("When the extension is unknown", func() {
			_, _, err := loader.Load(ctx, "doses.json")
			So(errors.Is(err, dataset.ErrUnsupportedFormat), ShouldBeTrue)
		})

		Convey("When the file does not exist", func() {
			_, _, err := loader.Load(ctx, filepath.Join(t.TempDir(), "missing.csv"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLoadURL(t *testing.T) {
	Convey("Given a dataset served over HTTP", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/CT_doses.csv" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(sampleCSV))
		}))
		defer srv.Close()
		loader := dataset.NewLoader(dataset.WithHTTPClient(srv.Client()))

		Convey("When loading by URL", func() {
			table, _, err := loader.Load(context.Background(), srv.URL+"/CT_doses.csv?raw=1")

			Convey("Then it is parsed like a local file", func() {
				So(err, ShouldBeNil)
				So(len(table.Records), ShouldEqual, 4)
			})
		})

		Convey("When the server answers with an error", func() {
			_, _, err := loader.Load(context.Background(), srv.URL+"/other.csv")

			Convey("Then it fails with ErrFetch", func() {
				So(errors.Is(err, dataset.ErrFetch), ShouldBeTrue)
			})
		})
	})
}

func TestLoadXLSX(t *testing.T) {
	Convey("Given an XLSX dataset", t, func() {
		path := filepath.Join(t.TempDir(), "doses.xlsx")
		f := excelize.NewFile()
		rows := [][]interface{}{
			{"Booked Date", "Exam Name", "Dosage", "Age Group"},
			{"10/02/2023", "CT Chest", "7.25", "18-40"},
			{"11/02/2023", "CT Chest", "", "18-40"},
		}
		for i, row := range rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+1)
			So(f.SetSheetRow("Sheet1", cell, &row), ShouldBeNil)
		}
		So(f.SaveAs(path), ShouldBeNil)
		So(f.Close(), ShouldBeNil)

		Convey("When loading it", func() {
			table, _, err := dataset.NewLoader().Load(context.Background(), path)

			Convey("Then the first sheet is read", func() {
				So(err, ShouldBeNil)
				So(len(table.Records), ShouldEqual, 2)
				So(*table.Records[0].Dosage, ShouldEqual, 7.25)
				So(table.Records[1].Dosage, ShouldBeNil)
				So(table.Records[0].BookedDate.Month(), ShouldEqual, time.February)
			})
		})
	})
}

func TestSave(t *testing.T) {
	Convey("Given flagged rows", t, func() {
		cols := []string{"Booked Date", "Exam Name", "Dosage", "Age Group", "Scanner"}
		rows := []record.Annotated{
			{
				Record: record.Record{
					BookedDate: record.Date(2023, time.January, 3),
					ExamName:   "CT Head",
					Dosage:     record.Float(0),
					AgeGroup:   "18-40",
					Extra:      map[string]string{"Scanner": "A"},
				},
				MeanExaminationDose: record.Float(11.2),
			},
			{Record: record.Record{ExamName: "CT Abdo", AgeGroup: "65+"}},
		}
		dir := t.TempDir()

		Convey("When saving as CSV", func() {
			path := filepath.Join(dir, "out", "updated.csv")
			err := dataset.Save(context.Background(), path, cols, rows)

			Convey("Then the file has the input shape plus the mean column", func() {
				So(err, ShouldBeNil)
				data, rerr := os.ReadFile(path)
				So(rerr, ShouldBeNil)
				So(string(data), ShouldEqual,
					"Booked Date,Exam Name,Dosage,Age Group,Scanner,Mean Examination Dose\n"+
						"03/01/2023,CT Head,0,18-40,A,11.2\n"+
						",CT Abdo,,65+,,\n")
			})

			Convey("And it leaves no temp files behind", func() {
				entries, rerr := os.ReadDir(filepath.Dir(path))
				So(rerr, ShouldBeNil)
				So(len(entries), ShouldEqual, 1)
			})

			Convey("And saving again overwrites wholesale", func() {
				So(dataset.Save(context.Background(), path, cols, rows[:1]), ShouldBeNil)
				table, _, lerr := dataset.NewLoader().Load(context.Background(), path)
				So(lerr, ShouldBeNil)
				So(len(table.Records), ShouldEqual, 1)
				So(table.Columns[len(table.Columns)-1], ShouldEqual, record.ColMeanDose)
			})
		})

		Convey("When saving as XLSX", func() {
			path := filepath.Join(dir, "updated.xlsx")
			err := dataset.Save(context.Background(), path, cols, rows)

			Convey("Then it can be loaded back", func() {
				So(err, ShouldBeNil)
				table, _, lerr := dataset.NewLoader().Load(context.Background(), path)
				So(lerr, ShouldBeNil)
				So(len(table.Records), ShouldEqual, 2)
				So(*table.Records[0].Dosage, ShouldEqual, 0)
				So(table.Records[0].Extra["Scanner"], ShouldEqual, "A")
			})
		})

		Convey("When the output extension is unsupported", func() {
			err := dataset.Save(context.Background(), filepath.Join(dir, "out.txt"), cols, rows)
			So(errors.Is(err, dataset.ErrUnsupportedFormat), ShouldBeTrue)
		})
	})
}

func TestOutputColumns(t *testing.T) {
	Convey("Given column lists", t, func() {
		So(dataset.OutputColumns([]string{"A"}), ShouldResemble, []string{"A", record.ColMeanDose})
		So(dataset.OutputColumns([]string{"A", record.ColMeanDose}), ShouldResemble, []string{"A", record.ColMeanDose})
		So(len(dataset.OutputColumns(nil)), ShouldEqual, len(record.RequiredColumns)+1)
	})
}

func TestWatcher(t *testing.T) {
	Convey("Given a watched dataset file", t, func() {
		path := writeFile(t, "doses.csv", sampleCSV)
		var calls atomic.Int32
		w, err := dataset.NewWatcher(path, func(context.Context) { calls.Add(1) }, dataset.WithDebounce(20*time.Millisecond))
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		Convey("When the file is rewritten", func() {
			So(os.WriteFile(path, []byte(sampleCSV+"06/01/2023,CT Head,9,18-40,A\n"), 0o600), ShouldBeNil)

			Convey("Then the reload callback fires", func() {
				deadline := time.Now().Add(3 * time.Second)
				for calls.Load() == 0 && time.Now().Before(deadline) {
					time.Sleep(10 * time.Millisecond)
				}
				So(calls.Load(), ShouldBeGreaterThan, 0)
				cancel()
				So(<-done, ShouldBeNil)
			})
		})

		Reset(func() { cancel() })
	})
}
