package service

import (
	"scholarship/internal/application/models"
	dErrors "scholarship/pkg/domain-errors"
)

func (s *ServiceSuite) TestQueue() {
	s.Run("stage comes from the role and filters narrow it", func() {
		s.permissive()
		s.submit(newStudent(), eligibleProfile())
		north := eligibleProfile()
		north.District = "Nagpur"
		s.submit(newStudent(), north)
		s.submitAtAdmin(newStudent())

		page, err := s.service.Queue(s.ctx, s.verifier, models.QueueFilter{Stage: models.StageAdmin})
		s.Require().NoError(err)
		s.Equal(2, page.Total)
		s.Equal(models.DefaultPageSize, page.Limit)
		for _, app := range page.Items {
			s.Equal(models.StageVerifier, app.Stage)
		}

		page, err = s.service.Queue(s.ctx, s.verifier, models.QueueFilter{District: "Nagpur"})
		s.Require().NoError(err)
		s.Require().Len(page.Items, 1)
		s.Equal("Nagpur", page.Items[0].District)

		page, err = s.service.Queue(s.ctx, s.admin, models.QueueFilter{})
		s.Require().NoError(err)
		s.Equal(1, page.Total)
		s.Equal(models.StageAdmin, page.Items[0].Stage)
	})

	s.Run("pagination is clamped", func() {
		page, err := s.service.Queue(s.ctx, s.admin, models.QueueFilter{Limit: 10000, Offset: -3})
		s.Require().NoError(err)
		s.Equal(models.MaxPageSize, page.Limit)
		s.Equal(0, page.Offset)
		s.Empty(page.Items)
	})

	s.Run("unknown status filter", func() {
		_, err := s.service.Queue(s.ctx, s.verifier, models.QueueFilter{Status: "pending_payment"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("students have no queue", func() {
		s.permissive()
		_, err := s.service.Queue(s.ctx, newStudent(), models.QueueFilter{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestReadAccess() {
	s.Run("owner and reviewers can read, other students cannot", func() {
		s.permissive()
		student := newStudent()
		res := s.submit(student, eligibleProfile())

		app, err := s.service.GetApplication(s.ctx, student, res.Application.ID)
		s.Require().NoError(err)
		s.Equal(res.Application.ID, app.ID)

		_, err = s.service.GetApplication(s.ctx, s.verifier, res.Application.ID)
		s.Require().NoError(err)

		_, err = s.service.GetApplication(s.ctx, newStudent(), res.Application.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = s.service.ListDocuments(s.ctx, newStudent(), res.Application.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		docs, err := s.service.ListDocuments(s.ctx, s.admin, res.Application.ID)
		s.Require().NoError(err)
		s.Len(docs, 2)
	})

	s.Run("my applications lists only the caller's", func() {
		s.permissive()
		student := newStudent()
		s.seed(student.ID, 2025, approve(40000))
		s.submit(newStudent(), eligibleProfile())

		apps, err := s.service.MyApplications(s.ctx, student)
		s.Require().NoError(err)
		s.Require().Len(apps, 1)
		s.Equal(2025, apps[0].Year)

		_, err = s.service.MyApplications(s.ctx, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
