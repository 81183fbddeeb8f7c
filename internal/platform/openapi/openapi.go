// Package openapi generates the OpenAPI 3 document of the collection API
// from the collection configurations.
package openapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dossiers/dossiers/internal/platform/collection"
	"github.com/dossiers/dossiers/internal/platform/i18n"
)

const (
	schemasPrefix = "#/components/schemas/"
	bearerScheme  = "bearerAuth"
)

// Endpoint documents a collection operation that is not part of the
// generated CRUD surface, such as a file export.
type Endpoint struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Tag         string
	Query       []string
	// Body names a component schema sent as the JSON request body.
	Body string
	// Produces is the media type of the 200 response. Empty means JSON.
	Produces string
}

// Generator builds the OpenAPI document of a set of collections.
type Generator struct {
	title       string
	version     string
	baseURL     string
	locale      string
	collections []*collection.Config
	endpoints   []Endpoint
	components  openapi3.Schemas
}

// NewGenerator creates a generator. Labels and descriptions are rendered
// in locale.
func NewGenerator(title, version, baseURL, locale string, collections ...*collection.Config) *Generator {
	if !i18n.IsSupported(locale) {
		locale = i18n.Fallback
	}
	return &Generator{
		title:       title,
		version:     version,
		baseURL:     baseURL,
		locale:      locale,
		collections: collections,
	}
}

// AddEndpoints documents extra operations.
func (g *Generator) AddEndpoints(eps ...Endpoint) {
	g.endpoints = append(g.endpoints, eps...)
}

// GenerateSpec produces the OpenAPI document.
func (g *Generator) GenerateSpec() *openapi3.T {
	g.components = commonSchemas()

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   g.title,
			Version: g.version,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			SecuritySchemes: openapi3.SecuritySchemes{
				bearerScheme: &openapi3.SecuritySchemeRef{Value: openapi3.NewJWTSecurityScheme()},
			},
		},
		Security: openapi3.SecurityRequirements{{bearerScheme: []string{}}},
	}
	if g.baseURL != "" {
		doc.AddServer(&openapi3.Server{URL: g.baseURL})
	}

	for _, c := range g.collections {
		g.addCollection(doc, c)
	}
	for _, ep := range g.endpoints {
		doc.AddOperation(ep.Path, ep.Method, g.endpointOperation(ep))
	}

	doc.Components.Schemas = g.components
	return doc
}

// Validate checks the generated document against the OpenAPI 3 rules.
func (g *Generator) Validate(ctx context.Context) error {
	return g.GenerateSpec().Validate(ctx)
}

// SchemaName is the component name of a collection's document schema,
// e.g. "Patients" for the patients collection and "CareNotes" for
// care-notes.
func SchemaName(c *collection.Config) string {
	title := cases.Title(language.English).String(strings.ReplaceAll(c.Slug, "-", " "))
	return strings.ReplaceAll(title, " ", "")
}

// ref points at a component schema and carries its resolved value.
func (g *Generator) ref(name string) *openapi3.SchemaRef {
	var value *openapi3.Schema
	if sr := g.components[name]; sr != nil {
		value = sr.Value
	}
	return openapi3.NewSchemaRef(schemasPrefix+name, value)
}

func (g *Generator) addCollection(doc *openapi3.T, c *collection.Config) {
	name := SchemaName(c)
	tag := c.Labels.Plural.Get(g.locale)

	g.components[name] = &openapi3.SchemaRef{Value: g.documentSchema(c)}
	g.components[name+"Page"] = &openapi3.SchemaRef{Value: pageSchema(g.ref(name))}

	base := "/" + c.Slug
	item := base + "/{id}"
	body := openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(g.ref(name))

	list := g.operation("list"+name, "List "+c.Slug, tag)
	list.Parameters = append(list.Parameters, queryParams("limit", "offset", "page", "sort")...)
	for _, f := range c.DataFields() {
		if f.Type == collection.TypeText && (f.Unique || f.Name == c.Admin.UseAsTitle) {
			list.Parameters = append(list.Parameters, queryParams(f.Name)...)
		}
	}
	list.Responses = responses(http.StatusOK, jsonResponse("Page of documents", g.ref(name+"Page")))
	doc.AddOperation(base, http.MethodGet, list)

	create := g.operation("create"+name, "Create a document", tag)
	create.RequestBody = &openapi3.RequestBodyRef{Value: body}
	create.Responses = responses(http.StatusCreated, jsonResponse("Created", g.ref(name)))
	g.addErrors(create.Responses, http.StatusBadRequest, http.StatusConflict)
	doc.AddOperation(base, http.MethodPost, create)

	read := g.operation("get"+name, "Read a document", tag)
	read.Parameters = idParam()
	read.Responses = responses(http.StatusOK, jsonResponse("Document", g.ref(name)))
	g.addErrors(read.Responses, http.StatusNotFound)
	doc.AddOperation(item, http.MethodGet, read)

	update := g.operation("update"+name, "Replace a document", tag)
	update.Parameters = append(idParam(), ifMatchParam())
	update.RequestBody = &openapi3.RequestBodyRef{Value: body}
	update.Responses = responses(http.StatusOK, jsonResponse("Updated", g.ref(name)))
	g.addErrors(update.Responses, http.StatusBadRequest, http.StatusNotFound, http.StatusConflict)
	doc.AddOperation(item, http.MethodPut, update)

	patch := g.operation("patch"+name, "Update some fields of a document", tag)
	patch.Parameters = append(idParam(), ifMatchParam())
	patch.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithRequired(true).
		WithJSONSchema(openapi3.NewObjectSchema())}
	patch.Responses = responses(http.StatusOK, jsonResponse("Updated", g.ref(name)))
	g.addErrors(patch.Responses, http.StatusBadRequest, http.StatusNotFound, http.StatusConflict)
	doc.AddOperation(item, http.MethodPatch, patch)

	del := g.operation("delete"+name, "Delete a document", tag)
	del.Parameters = idParam()
	del.Responses = responses(http.StatusNoContent, openapi3.NewResponse().WithDescription("Deleted"))
	g.addErrors(del.Responses, http.StatusNotFound)
	doc.AddOperation(item, http.MethodDelete, del)

	labels := g.operation("labels"+name, "Row labels of a document", tag)
	labels.Parameters = append(idParam(), queryParams("locale")...)
	labels.Responses = responses(http.StatusOK, jsonResponse("Labelled arrays",
		openapi3.NewSchemaRef("", openapi3.NewArraySchema().WithItems(g.ref("LabelledArray").Value))))
	g.addErrors(labels.Responses, http.StatusNotFound)
	doc.AddOperation(item+"/labels", http.MethodGet, labels)

	describe := g.operation("describe"+name, "Admin form of the collection", tag)
	describe.Parameters = queryParams("locale")
	describe.Responses = responses(http.StatusOK, jsonResponse("Collection descriptor",
		openapi3.NewSchemaRef("", openapi3.NewObjectSchema())))
	doc.AddOperation("/collections/"+c.Slug, http.MethodGet, describe)
}

func (g *Generator) endpointOperation(ep Endpoint) *openapi3.Operation {
	op := g.operation(ep.OperationID, ep.Summary, ep.Tag)
	for _, seg := range strings.Split(ep.Path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
				Value: openapi3.NewPathParameter(strings.Trim(seg, "{}")).WithSchema(openapi3.NewStringSchema()),
			})
		}
	}
	op.Parameters = append(op.Parameters, queryParams(ep.Query...)...)
	if ep.Body != "" {
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithRequired(true).
			WithJSONSchemaRef(g.ref(ep.Body))}
	}

	ok := openapi3.NewResponse().WithDescription(ep.Summary)
	if ep.Produces != "" {
		ok.WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema().WithFormat("binary"), []string{ep.Produces}))
	} else {
		ok.WithContent(openapi3.NewContentWithJSONSchema(openapi3.NewObjectSchema()))
	}
	op.Responses = responses(http.StatusOK, ok)
	g.addErrors(op.Responses, http.StatusBadRequest, http.StatusNotFound)
	return op
}

func (g *Generator) operation(id, summary, tag string) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = id
	op.Summary = summary
	if tag != "" {
		op.Tags = []string{tag}
	}
	return op
}

func (g *Generator) addErrors(r *openapi3.Responses, codes ...int) {
	for _, code := range codes {
		schema := "Error"
		if code == http.StatusBadRequest {
			schema = "ValidationError"
		}
		r.Set(strconv.Itoa(code), &openapi3.ResponseRef{Value: jsonResponse(http.StatusText(code), g.ref(schema))})
	}
}

// documentSchema maps the field tree of c onto a JSON schema, adding the
// system fields every stored document carries.
func (g *Generator) documentSchema(c *collection.Config) *openapi3.Schema {
	s := g.levelSchema(c.Fields)
	s.Description = c.Labels.Singular.Get(g.locale)

	system := map[string]*openapi3.Schema{
		"id":        openapi3.NewUUIDSchema(),
		"versionId": openapi3.NewInt64Schema(),
		"createdAt": openapi3.NewDateTimeSchema(),
		"updatedAt": openapi3.NewDateTimeSchema(),
	}
	for name, v := range system {
		v.ReadOnly = true
		s.WithProperty(name, v)
	}
	return s
}

func (g *Generator) levelSchema(fields []collection.Field) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	var required []string
	for _, f := range collection.DataFields(fields) {
		s.WithProperty(f.Name, g.fieldSchema(f))
		if f.Required {
			required = append(required, f.Name)
		}
	}
	if len(required) > 0 {
		s.WithRequired(required)
	}
	return s
}

func (g *Generator) fieldSchema(f collection.Field) *openapi3.Schema {
	var s *openapi3.Schema
	switch f.Type {
	case collection.TypeNumber:
		s = openapi3.NewFloat64Schema()
	case collection.TypeDate:
		s = openapi3.NewDateTimeSchema()
	case collection.TypeArray:
		s = openapi3.NewArraySchema().WithItems(g.levelSchema(f.Fields))
		if f.MinRows > 0 {
			s.WithMinItems(int64(f.MinRows))
		}
	default:
		s = openapi3.NewStringSchema()
	}
	s.Title = f.Label.Get(g.locale)
	s.Description = f.Admin.Description.Get(g.locale)
	s.ReadOnly = f.Admin.ReadOnly
	return s
}

func commonSchemas() openapi3.Schemas {
	fieldError := openapi3.NewObjectSchema().
		WithProperty("path", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema())

	labelledRow := openapi3.NewObjectSchema().
		WithProperty("path", openapi3.NewStringSchema()).
		WithProperty("label", openapi3.NewStringSchema()).
		WithProperty("arrays", openapi3.NewArraySchema().WithItems(openapi3.NewObjectSchema()))

	return openapi3.Schemas{
		"Error": &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
			WithProperty("message", openapi3.NewStringSchema())},
		"ValidationError": &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
			WithProperty("message", openapi3.NewStringSchema()).
			WithProperty("errors", openapi3.NewArraySchema().WithItems(fieldError))},
		"LabelledArray": &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
			WithProperty("field", openapi3.NewStringSchema()).
			WithProperty("path", openapi3.NewStringSchema()).
			WithProperty("label", openapi3.NewStringSchema()).
			WithProperty("rows", openapi3.NewArraySchema().WithItems(labelledRow))},
		"FormState": &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
			WithProperty("path", openapi3.NewStringSchema()).
			WithProperty("data", openapi3.NewObjectSchema())},
	}
}

func pageSchema(item *openapi3.SchemaRef) *openapi3.Schema {
	links := openapi3.NewObjectSchema().
		WithProperty("self", openapi3.NewStringSchema()).
		WithProperty("next", openapi3.NewStringSchema()).
		WithProperty("previous", openapi3.NewStringSchema())

	return openapi3.NewObjectSchema().
		WithProperty("data", &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeArray}, Items: item}).
		WithProperty("total", openapi3.NewIntegerSchema()).
		WithProperty("limit", openapi3.NewIntegerSchema()).
		WithProperty("offset", openapi3.NewIntegerSchema()).
		WithProperty("has_more", openapi3.NewBoolSchema()).
		WithProperty("links", links)
}

func idParam() openapi3.Parameters {
	return openapi3.Parameters{{Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewUUIDSchema())}}
}

func ifMatchParam() *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewHeaderParameter("If-Match").
		WithDescription(`Expected version as a weak ETag, e.g. W/"3"`).
		WithSchema(openapi3.NewStringSchema())}
}

func queryParams(names ...string) openapi3.Parameters {
	out := make(openapi3.Parameters, 0, len(names))
	for _, n := range names {
		s := openapi3.NewStringSchema()
		switch n {
		case "limit", "offset", "page":
			s = openapi3.NewIntegerSchema().WithMin(0)
		}
		out = append(out, &openapi3.ParameterRef{Value: openapi3.NewQueryParameter(n).WithSchema(s)})
	}
	return out
}

func jsonResponse(description string, schema *openapi3.SchemaRef) *openapi3.Response {
	return openapi3.NewResponse().WithDescription(description).WithJSONSchemaRef(schema)
}

func responses(code int, r *openapi3.Response) *openapi3.Responses {
	return openapi3.NewResponses(openapi3.WithStatus(code, &openapi3.ResponseRef{Value: r}))
}

// RegisterRoutes serves the document at /openapi.json. The document is
// generated once, on registration.
func (g *Generator) RegisterRoutes(e *echo.Echo) {
	doc := g.GenerateSpec()
	e.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, doc)
	})
}
