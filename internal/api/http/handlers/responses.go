package handlers

import (
	"github.com/itasset/ticket-workflow/internal/api/dto"
	"github.com/itasset/ticket-workflow/internal/domain"
	"github.com/itasset/ticket-workflow/internal/service"
)

func staffResponse(staff *domain.StaffMember) dto.StaffResponse {
	return dto.StaffResponse{
		ID:     staff.ID,
		Name:   staff.Name,
		Email:  staff.Email,
		Role:   staff.Role,
		Active: staff.Active,
	}
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                     ticket.ID,
		ExternalKey:            ticket.ExternalKey,
		Title:                  ticket.Title,
		RequesterID:            ticket.RequesterID,
		AssignedEngineerID:     ticket.AssignedEngineerID,
		Status:                 ticket.Status,
		ServiceType:            ticket.ServiceType,
		ReopenCount:            ticket.ReopenCount,
		MaxReopenCountOverride: ticket.MaxReopenCountOverride,
		CreatedAt:              ticket.CreatedAt,
		UpdatedAt:              ticket.UpdatedAt,
		ClosedAt:               ticket.ClosedAt,
	}
}

func ticketDetail(details *service.TicketDetails) dto.TicketDetailResponse {
	return dto.TicketDetailResponse{
		TicketResponse: ticketResponse(details.Ticket),
		CloseRequests:  closeRequestResponses(details.CloseRequests),
		ReopenEvents:   reopenEventResponses(details.ReopenEvents),
		RepairRecords:  repairRecordResponses(details.RepairRecords),
	}
}

func closeRequestResponse(req *domain.CloseRequest) dto.CloseRequestResponse {
	return dto.CloseRequestResponse{
		ID:              req.ID,
		TicketID:        req.TicketID,
		EngineerID:      req.EngineerID,
		RequestNotes:    req.RequestNotes,
		ServiceReportID: req.ServiceReportID,
		RequestStatus:   req.RequestStatus,
		CreatedAt:       req.CreatedAt,
		ReviewedAt:      req.ReviewedAt,
		ReviewerID:      req.ReviewerID,
		ReviewNotes:     req.ReviewNotes,
	}
}

func closeRequestResponses(reqs []domain.CloseRequest) []dto.CloseRequestResponse {
	resp := make([]dto.CloseRequestResponse, 0, len(reqs))
	for i := range reqs {
		resp = append(resp, closeRequestResponse(&reqs[i]))
	}
	return resp
}

func reopenEventResponse(e *domain.ReopenEvent) dto.ReopenEventResponse {
	return dto.ReopenEventResponse{
		ID:           e.ID,
		TicketID:     e.TicketID,
		ReopenNumber: e.ReopenNumber,
		ReopenedBy:   e.ReopenedBy,
		ReopenReason: e.ReopenReason,
		SLAResetMode: e.SLAResetMode,
		ReopenedAt:   e.ReopenedAt,
	}
}

func reopenEventResponses(evts []domain.ReopenEvent) []dto.ReopenEventResponse {
	resp := make([]dto.ReopenEventResponse, 0, len(evts))
	for i := range evts {
		resp = append(resp, reopenEventResponse(&evts[i]))
	}
	return resp
}

func repairRecordResponses(records []domain.RepairRecord) []dto.RepairRecordResponse {
	resp := make([]dto.RepairRecordResponse, 0, len(records))
	for _, r := range records {
		parts := r.PartsReplaced
		if parts == nil {
			parts = []string{}
		}
		resp = append(resp, dto.RepairRecordResponse{
			ID:               r.ID,
			TicketID:         r.TicketID,
			AssetID:          r.AssetID,
			CloseRequestID:   r.CloseRequestID,
			FaultDescription: r.FaultDescription,
			Resolution:       r.Resolution,
			PartsReplaced:    parts,
			LaborCostCents:   r.LaborCostCents,
			PartsCostCents:   r.PartsCostCents,
			TotalCostCents:   r.TotalCostCents(),
			CreatedBy:        r.CreatedBy,
			CreatedAt:        r.CreatedAt,
		})
	}
	return resp
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:          entry.ID,
			ChangeType:  entry.ChangeType,
			ChangedByID: entry.ChangedByID,
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}

func eligibilityResponse(e domain.ReopenEligibility) dto.ReopenEligibilityResponse {
	return dto.ReopenEligibilityResponse{
		TicketID:         e.TicketID,
		CanReopen:        e.CanReopen,
		Reason:           e.Reason,
		RemainingReopens: e.RemainingReopens,
		DaysRemaining:    e.DaysRemaining,
		MaxReopenCount:   e.MaxReopenCount,
		ReopenWindowDays: e.ReopenWindowDays,
	}
}

func reopenConfigResponse(cfg domain.ReopenConfig) dto.ReopenConfigResponse {
	resp := dto.ReopenConfigResponse{
		Version:             cfg.Version,
		ReopenWindowDays:    cfg.ReopenWindowDays,
		MaxReopenCount:      cfg.MaxReopenCount,
		SLAResetMode:        cfg.SLAResetMode,
		RequireReopenReason: cfg.RequireReopenReason,
		NotifyAssignee:      cfg.NotifyAssignee,
		NotifyManager:       cfg.NotifyManager,
		UpdatedBy:           cfg.UpdatedBy,
	}
	if !cfg.UpdatedAt.IsZero() {
		updatedAt := cfg.UpdatedAt
		resp.UpdatedAt = &updatedAt
	}
	return resp
}
