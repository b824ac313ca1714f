package patient

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-sync/internal/handler"
	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/repository"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
)

// Handler serves the patient summary: profile, clinical records, and whether
// each measurement is still within the correction window.
type Handler struct {
	patients    repository.PatientRepository
	bps         repository.BloodPressureRepository
	sugars      repository.BloodSugarRepository
	drugs       repository.PrescribedDrugRepository
	histories   repository.MedicalHistoryRepository
	editableFor time.Duration
	clock       clock.Clock
}

func NewHandler(
	patients repository.PatientRepository,
	bps repository.BloodPressureRepository,
	sugars repository.BloodSugarRepository,
	drugs repository.PrescribedDrugRepository,
	histories repository.MedicalHistoryRepository,
	editableFor time.Duration,
	clk clock.Clock,
) *Handler {
	return &Handler{
		patients:    patients,
		bps:         bps,
		sugars:      sugars,
		drugs:       drugs,
		histories:   histories,
		editableFor: editableFor,
		clock:       clk,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/patients/:id", h.Get)
}

type bloodPressureView struct {
	model.BloodPressureMeasurement
	Editable bool `json:"editable"`
}

type bloodSugarView struct {
	model.BloodSugarMeasurement
	Editable bool `json:"editable"`
}

type patientDetail struct {
	Profile         *model.PatientProfile  `json:"profile"`
	BloodPressures  []bloodPressureView    `json:"blood_pressures"`
	BloodSugars     []bloodSugarView       `json:"blood_sugars"`
	PrescribedDrugs []model.PrescribedDrug `json:"prescribed_drugs"`
	MedicalHistory  *model.MedicalHistory  `json:"medical_history,omitempty"`
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient id"))
		return
	}
	ctx := c.Request.Context()

	profile, err := h.patients.Get(ctx, id)
	if err != nil {
		c.JSON(http.StatusNotFound, handler.NewErrorResponse(err.Error()))
		return
	}

	now := h.clock.Now()
	detail := patientDetail{Profile: profile}

	bps, err := h.bps.ListForPatient(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	for _, m := range bps {
		detail.BloodPressures = append(detail.BloodPressures, bloodPressureView{
			BloodPressureMeasurement: m,
			Editable:                 m.CanBeEdited(now, h.editableFor),
		})
	}

	sugars, err := h.sugars.ListForPatient(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	for _, m := range sugars {
		detail.BloodSugars = append(detail.BloodSugars, bloodSugarView{
			BloodSugarMeasurement: m,
			Editable:              m.CanBeEdited(now, h.editableFor),
		})
	}

	drugs, err := h.drugs.ListForPatient(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	detail.PrescribedDrugs = drugs

	history, err := h.histories.GetForPatient(ctx, id)
	if err == nil {
		detail.MedicalHistory = history
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(detail))
}
