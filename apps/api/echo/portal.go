package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
	"github.com/trezcool/shule/core/lesson"
	"github.com/trezcool/shule/core/role"
	"github.com/trezcool/shule/core/subscription"
)

type portalApi struct {
	provider   backend.Provider
	resolver   *role.Resolver
	subSvc     *subscription.Service
	lessonSvc  *lesson.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerPortalAPI(g *echo.Group, jwtConf middleware.JWTConfig, deps ServerDeps) {
	api := portalApi{
		provider:   deps.Provider,
		resolver:   deps.Resolver,
		subSvc:     deps.SubSvc,
		lessonSvc:  deps.LessonSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}
	jwt := middleware.JWTWithConfig(jwtConf)
	gate := func(g role.Gate) echo.MiddlewareFunc { return roleGateMiddleware(api.resolver, g) }

	// token optional
	mg := g.Group("/me", optionalJWT(jwtConf))
	mg.GET("", api.me, gate(role.Gate{}))
	mg.PUT("/profile", api.saveProfile, jwt)

	sg := g.Group("/student", jwt, gate(role.Gate{RequireStudent: true}))
	sg.GET("/lessons", api.studentLessons)
	sg.PUT("/lessons/:id/progress", api.setLessonProgress)
	sg.GET("/subscription", api.paywall)
	sg.GET("/subscription/claims", api.myClaims)
	sg.POST("/subscription/claims", api.submitClaim)

	tg := g.Group("/teacher", jwt, gate(role.Gate{RequireTeacher: true}))
	tg.GET("/profile", api.teacherProfile)

	ag := g.Group("/admin", jwt, gate(role.Gate{RequireAdmin: true}))
	ag.GET("/claims", api.pendingClaims)
	ag.POST("/claims/:id/approve", api.approveClaim)
	ag.GET("/classes/:id/subscription", api.getSubscriptionConfig)
	ag.PUT("/classes/:id/subscription", api.setSubscriptionConfig)
	ag.POST("/classes/:id/subscriptions", api.activateSubscription)
}

func (api *portalApi) contextStudent(ctx echo.Context) (backend.Student, error) {
	res, err := getContextResolution(ctx)
	if err != nil {
		return backend.Student{}, err
	}
	if res.StudentProfile == nil {
		return backend.Student{}, errHttpNotStudent
	}
	return *res.StudentProfile, nil
}

// Handlers

func (api *portalApi) me(ctx echo.Context) error {
	res, err := getContextResolution(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *portalApi) saveProfile(ctx echo.Context) error {
	id := getContextIdentity(ctx)
	if id == nil {
		return errUnauthorized
	}
	var data ProfileRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProfileRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	client, err := api.provider.Client()
	if err != nil {
		return err
	}
	profile := backend.UserProfile{Name: core.CleanString(data.Name), Role: data.Role}
	if err = client.SaveCallerUserProfile(ctx.Request().Context(), id.Principal, profile); err != nil {
		return core.NewBackendError("saveCallerUserProfile", err)
	}

	res, err := api.resolver.Resolve(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "resolving role")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *portalApi) studentLessons(ctx echo.Context) error {
	student, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	lessons, err := api.lessonSvc.StudentLessons(ctx.Request().Context(), student.Principal, student)
	if err != nil {
		return errors.Wrap(err, "listing lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *portalApi) setLessonProgress(ctx echo.Context) error {
	student, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	var data ProgressRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgressRequest")
	}
	progress, err := api.lessonSvc.SetProgress(ctx.Request().Context(), student.Principal, student, ctx.Param("id"), data.Completed)
	if err != nil {
		return errors.Wrap(err, "setting progress")
	}
	return ctx.JSON(http.StatusOK, progress)
}

func (api *portalApi) paywall(ctx echo.Context) error {
	student, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	state, err := api.subSvc.Paywall(ctx.Request().Context(), student)
	if err != nil {
		return errors.Wrap(err, "computing paywall")
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *portalApi) myClaims(ctx echo.Context) error {
	student, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	claims, err := api.subSvc.ListMyClaims(ctx.Request().Context(), student.ID, student.ClassID)
	if err != nil {
		return errors.Wrap(err, "listing claims")
	}
	return ctx.JSON(http.StatusOK, claims)
}

func (api *portalApi) submitClaim(ctx echo.Context) error {
	student, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	var data ClaimRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ClaimRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	claim, err := api.subSvc.SubmitPaymentClaim(ctx.Request().Context(), subscription.NewClaim{
		StudentID:   student.ID,
		StudentName: student.FullName(),
		ClassID:     student.ClassID,
		ClassName:   api.className(ctx, student.ClassID),
		Reference:   data.Reference,
	})
	if err != nil {
		return errors.Wrap(err, "submitting claim")
	}
	return ctx.JSON(http.StatusCreated, claim)
}

// className is best effort: the id is used when the class cannot be read.
func (api *portalApi) className(ctx echo.Context, classID string) string {
	client, err := api.provider.Client()
	if err != nil {
		return classID
	}
	classes, err := client.GetClasses(ctx.Request().Context())
	if err != nil {
		return classID
	}
	for _, c := range classes {
		if c.ID == classID {
			return c.Name
		}
	}
	return classID
}

func (api *portalApi) teacherProfile(ctx echo.Context) error {
	res, err := getContextResolution(ctx)
	if err != nil {
		return err
	}
	if res.TeacherProfile == nil {
		return errHttpNotTeacher
	}
	return ctx.JSON(http.StatusOK, res.TeacherProfile)
}

func (api *portalApi) pendingClaims(ctx echo.Context) error {
	claims, err := api.subSvc.ListPendingClaims(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing pending claims")
	}
	return ctx.JSON(http.StatusOK, claims)
}

func (api *portalApi) approveClaim(ctx echo.Context) error {
	claim, err := api.subSvc.ApproveClaim(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving claim")
	}
	return ctx.JSON(http.StatusOK, claim)
}

func (api *portalApi) getSubscriptionConfig(ctx echo.Context) error {
	cfg, err := api.subSvc.GetConfig(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting subscription config")
	}
	return ctx.JSON(http.StatusOK, cfg)
}

func (api *portalApi) setSubscriptionConfig(ctx echo.Context) error {
	var data SubscriptionConfigRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubscriptionConfigRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cfg, err := api.subSvc.SetConfig(ctx.Request().Context(), ctx.Param("id"), subscription.ConfigUpdate{
		PaywallEnabled: data.PaywallEnabled,
		PriceSatoshis:  data.PriceSatoshis,
		QRImage:        data.QRImage,
	})
	if err != nil {
		return errors.Wrap(err, "setting subscription config")
	}
	return ctx.JSON(http.StatusOK, cfg)
}

func (api *portalApi) activateSubscription(ctx echo.Context) error {
	var data ActivateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActivateRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.subSvc.ActivateSubscription(ctx.Request().Context(), data.StudentID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "activating subscription")
	}
	return ctx.NoContent(http.StatusNoContent)
}
