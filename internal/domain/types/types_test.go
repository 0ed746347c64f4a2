package types_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/dosewatch/internal/domain/filter"
	"github.com/okian/dosewatch/internal/domain/record"
	types "github.com/okian/dosewatch/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDate(t *testing.T) {
	Convey("Given calendar dates", t, func() {
		Convey("When parsing query values", func() {
			d, err := types.ParseDate("2023-01-05")
			So(err, ShouldBeNil)
			So(d.Equal(time.Date(2023, time.January, 5, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)

			empty, err := types.ParseDate("  ")
			So(err, ShouldBeNil)
			So(empty, ShouldBeNil)

			_, err = types.ParseDate("05/01/2023")
			So(errors.Is(err, types.ErrInvalidDate), ShouldBeTrue)
		})

		Convey("When encoding rows", func() {
			row := types.FromAnnotated(3, record.Annotated{
				Record: record.Record{
					BookedDate: record.Date(2023, time.January, 5),
					ExamName:   "CT Head",
					AgeGroup:   "18-40",
				},
				MeanExaminationDose: record.Float(11.3),
			})
			b, err := json.Marshal(row)

			Convey("Then dates use YYYY-MM-DD and null dosage stays null", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual,
					`{"index":3,"booked_date":"2023-01-05","exam_name":"CT Head","dosage":null,"age_group":"18-40","mean_examination_dose":11.3}`)
			})
		})

		Convey("When decoding criteria", func() {
			var c types.Criteria
			err := json.Unmarshal([]byte(`{"exam":"CT Head","from":"2023-01-01","to":null,"age":"All"}`), &c)

			Convey("Then they convert to filter criteria", func() {
				So(err, ShouldBeNil)
				fc := c.Filter()
				So(fc.Exam, ShouldEqual, "CT Head")
				So(fc.From.Day(), ShouldEqual, 1)
				So(fc.To, ShouldBeNil)
				So(types.FromCriteria(fc).From.String(), ShouldEqual, "2023-01-01")
			})

			Convey("And malformed dates are rejected", func() {
				err := json.Unmarshal([]byte(`{"from":"01/01/2023"}`), &c)
				So(errors.Is(err, types.ErrInvalidDate), ShouldBeTrue)
			})
		})
	})
}

func TestRows(t *testing.T) {
	Convey("Given records", t, func() {
		records := []record.Record{{ExamName: "A"}, {ExamName: "B"}}
		rows := types.Rows(records)
		So(len(rows), ShouldEqual, 2)
		So(rows[1].Index, ShouldEqual, 1)
		So(rows[1].BookedDate, ShouldBeNil)
		So(types.MessageFor(0), ShouldEqual, types.NoDataMessage)
		So(types.MessageFor(2), ShouldBeEmpty)
		So(types.FromCriteria(filter.Criteria{Exam: filter.All}).From, ShouldBeNil)
	})
}
