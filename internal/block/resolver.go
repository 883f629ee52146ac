// Package block реализует разрешение блокировок дат бронирования.
package block

import (
	"sort"
	"time"

	"github.com/vpanarin/vesselbook/internal/model"
)

// Resolution содержит результат проверки блокировки даты.
type Resolution struct {
	Blocked bool
	Reason  model.BlockReason
}

// Resolve проверяет, заблокирована ли дата для судна, по переданным правилам.
// Сначала проверяются активные еженедельные блокировки: совпадение по дню
// недели блокирует дату для всех судов сразу, побеждает первая по порядку
// создания. Затем проверяются разовые блокировки конкретного судна: при
// пересечении диапазонов побеждает блокировка с наименьшей датой начала,
// при равенстве — созданная раньше. Выбор победителя при пересечении —
// договорённость для предсказуемости, а не требование корректности.
func Resolve(weekly []model.WeeklyBlock, dated []model.DateBlock, vesselID int64, date time.Time) Resolution {
	day := model.CivilDate(date)
	weekday := int(day.Weekday())

	for _, wb := range sortedWeekly(weekly) {
		if wb.IsActive && wb.DayOfWeek == weekday {
			return Resolution{Blocked: true, Reason: wb.Reason}
		}
	}

	for _, db := range sortedDated(dated) {
		if db.VesselID != vesselID {
			continue
		}
		start := model.CivilDate(db.StartDate)
		end := model.CivilDate(db.EndDate)
		if !day.Before(start) && !day.After(end) {
			return Resolution{Blocked: true, Reason: db.Reason}
		}
	}

	return Resolution{}
}

func sortedWeekly(weekly []model.WeeklyBlock) []model.WeeklyBlock {
	res := make([]model.WeeklyBlock, len(weekly))
	copy(res, weekly)
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})
	return res
}

func sortedDated(dated []model.DateBlock) []model.DateBlock {
	res := make([]model.DateBlock, len(dated))
	copy(res, dated)
	sort.SliceStable(res, func(i, j int) bool {
		si := model.CivilDate(res[i].StartDate)
		sj := model.CivilDate(res[j].StartDate)
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return res[i].ID < res[j].ID
	})
	return res
}
