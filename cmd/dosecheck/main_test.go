package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/dosewatch/internal/adapters/dataset"
	"github.com/okian/dosewatch/internal/domain/types"
)

const doses = "Booked Date,Exam Name,Dosage,Age Group\n" +
	"01/01/2023,CT Head,10,18-40\n" +
	"02/01/2023,CT Head,0,18-40\n" +
	"03/01/2023,CT Abdo,20,65+\n" +
	"04/01/2023,CT Abdo,22,65+\n"

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDosecheck(t *testing.T) {
	Convey("Given a dataset on disk", t, func() {
		dir := t.TempDir()
		in := filepath.Join(dir, "CT_doses.csv")
		So(os.WriteFile(in, []byte(doses), 0o600), ShouldBeNil)
		out := filepath.Join(dir, "review.csv")

		Convey("When flagging rows for review", func() {
			stdout, err := execute("flag", "--input", in, "--output", out)

			Convey("Then the worklist is written and the input is untouched", func() {
				So(err, ShouldBeNil)
				So(stdout, ShouldEqual, "1 rows written to "+out+"\n")

				data, rerr := os.ReadFile(out)
				So(rerr, ShouldBeNil)
				So(string(data), ShouldStartWith, "Booked Date,Exam Name,Dosage,Age Group,Mean Examination Dose\n")
				So(string(data), ShouldContainSubstring, "02/01/2023,CT Head,0,18-40,")

				orig, _ := os.ReadFile(in)
				So(string(orig), ShouldEqual, doses)
			})
		})

		Convey("When nothing needs review", func() {
			stdout, err := execute("flag", "--input", in, "--output", out, "--exam", "CT Abdo")

			Convey("Then no file is written", func() {
				So(err, ShouldBeNil)
				So(stdout, ShouldEqual, types.NoDataMessage+"\n")
				_, serr := os.Stat(out)
				So(os.IsNotExist(serr), ShouldBeTrue)
			})
		})

		Convey("When the dataset has an undated row and no date flags are given", func() {
			undated := filepath.Join(dir, "undated.csv")
			So(os.WriteFile(undated, []byte(doses+",CT Head,,18-40\n"), 0o600), ShouldBeNil)
			stdout, err := execute("flag", "--input", undated, "--output", out)

			Convey("Then the dataset's date range applies and the undated row is left out", func() {
				So(err, ShouldBeNil)
				So(stdout, ShouldEqual, "1 rows written to "+out+"\n")
				data, rerr := os.ReadFile(out)
				So(rerr, ShouldBeNil)
				So(string(data), ShouldNotContainSubstring, "\n,CT Head")
			})

			Convey("And statistics skip it too", func() {
				stdout, err := execute("stats", "--input", undated, "--json", "--exam", "CT Head")
				So(err, ShouldBeNil)
				var reports []struct {
					Records int `json:"records"`
				}
				So(json.Unmarshal([]byte(stdout), &reports), ShouldBeNil)
				So(reports[0].Records, ShouldEqual, 2)
			})
		})

		Convey("When the output format is unsupported", func() {
			_, err := execute("flag", "--input", in, "--output", filepath.Join(dir, "review.txt"))
			So(errors.Is(err, dataset.ErrUnsupportedFormat), ShouldBeTrue)
		})

		Convey("When a date flag is malformed", func() {
			_, err := execute("stats", "--input", in, "--from", "01/01/2023")
			So(errors.Is(err, types.ErrInvalidDate), ShouldBeTrue)
		})

		Convey("When printing the options", func() {
			stdout, err := execute("options", "--input", in)
			So(err, ShouldBeNil)
			So(stdout, ShouldContainSubstring, "Exams:      All, CT Head, CT Abdo\n")
			So(stdout, ShouldContainSubstring, "Dates:      2023-01-01 to 2023-01-04\n")
		})

		Convey("When printing statistics as JSON", func() {
			stdout, err := execute("stats", "--input", in, "--json")
			So(err, ShouldBeNil)

			var reports []struct {
				ExamName string `json:"exam_name"`
				Records  int    `json:"records"`
				Stats    struct {
					Mean *float64 `json:"mean"`
				} `json:"stats"`
			}
			So(json.Unmarshal([]byte(stdout), &reports), ShouldBeNil)
			So(len(reports), ShouldEqual, 2)
			So(reports[1].ExamName, ShouldEqual, "CT Abdo")
			So(*reports[1].Stats.Mean, ShouldEqual, 21)
		})

		Convey("When printing statistics as a table", func() {
			stdout, err := execute("stats", "--input", in, "--exam", "CT Head")
			So(err, ShouldBeNil)
			So(stdout, ShouldStartWith, "EXAM")
			So(stdout, ShouldContainSubstring, "CT Head")
			So(stdout, ShouldNotContainSubstring, "CT Abdo")
		})

		Convey("When the input does not exist", func() {
			_, err := execute("options", "--input", filepath.Join(dir, "missing.csv"))
			So(err, ShouldNotBeNil)
		})
	})
}
