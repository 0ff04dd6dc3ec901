package prompt

import (
	"fmt"
	"sort"
)

// Template IDs shipped with the service.
const (
	TakeOffExpertV1   = "takeoff-expert/v1"
	TakeOffBriefV1    = "takeoff-brief/v1"
	BOQPricedV1       = "boq-priced/v1"
	TakeOffSectionsV1 = "takeoff-sections/v1"
	BOQCostedV1       = "boq-costed/v1"
)

// Catalog indexes templates by ID.
type Catalog struct {
	templates map[string]*Template
}

// NewCatalog parses the templates and indexes them. Duplicate IDs are rejected.
func NewCatalog(templates ...Template) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]*Template, len(templates))}
	for i := range templates {
		t := templates[i]
		if err := t.parse(); err != nil {
			return nil, err
		}
		if _, exists := c.templates[t.ID()]; exists {
			return nil, fmt.Errorf("template %s registered twice", t.ID())
		}
		c.templates[t.ID()] = &t
	}
	return c, nil
}

// Lookup returns the template with the given ID.
func (c *Catalog) Lookup(id string) (*Template, error) {
	t, ok := c.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}
	return t, nil
}

// Resolve looks up a template and checks it was written for the given purpose.
func (c *Catalog) Resolve(id string, purpose Purpose) (*Template, error) {
	t, err := c.Lookup(id)
	if err != nil {
		return nil, err
	}
	if t.Purpose != purpose {
		return nil, fmt.Errorf("template %s is a %s template, not %s", id, t.Purpose, purpose)
	}
	return t, nil
}

// List returns the templates ordered by ID.
func (c *Catalog) List() []*Template {
	out := make([]*Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// DefaultCatalog returns the built-in templates.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(builtin...)
	if err != nil {
		panic(err)
	}
	return c
}

var builtin = []Template{
	{
		Name:    "takeoff-expert",
		Version: "v1",
		Purpose: PurposeAnalysis,
		Image:   true,
		System: `You are a quantity surveying expert specializing in Sri Lankan construction.
Analyze engineering drawings to provide precise take-off quantities following Sri Lankan construction standards.
Format your output in clear, well-structured tables with detailed descriptions and accurate measurements.`,
		User: `Provide a detailed quantity take-off analysis of this engineering drawing.
Include all relevant measurements, counts, and dimensions.

Format your response as a well-structured table with pipe separators (|) like this:

| Item | Description         | Unit | Quantity |
|------|---------------------|------|----------|
| 1.1  | Concrete foundation | m³   | 45.6     |
| 1.2  | Steel reinforcement | kg   | 1200     |

Group items by categories (e.g., Earthwork, Concrete, Masonry, etc.)
Include subtotals for each category where appropriate.
Use units according to Sri Lankan construction practices.`,
	},
	{
		Name:    "takeoff-brief",
		Version: "v1",
		Purpose: PurposeAnalysis,
		Image:   true,
		User: `Provide a detailed take-off of the quantities from this engineering drawing.
Return your analysis as a structured table with pipe separators (|) like this:

| Item | Description | Unit | Quantity |
|------|-------------|------|----------|
| 1    | Walls       | m²   | 450      |

Include all dimensions, areas, volumes, and counts that are relevant to quantity surveying in Sri Lanka.
Make your table comprehensive with appropriate section headings and organized categories.`,
	},
	{
		Name:    "boq-priced",
		Version: "v1",
		Purpose: PurposeBOQ,
		System: `You are a professional quantity surveyor in Sri Lanka. Your task is to create a detailed Bill of Quantities (BOQ)
from take-off data. Include item codes, descriptions, units, quantities, rates, and amounts.
Make reasonable assumptions for rates based on current Sri Lankan market prices in Sri Lankan Rupees (LKR).
Organize by CSI MasterFormat divisions or CIDA standards for Sri Lanka.

Format your output as a well-structured table with column headers for Item Code, Description, Unit, Quantity, Rate (LKR), and Amount (LKR).
Use pipe characters (|) to separate columns for better parsing, like this:

| Item Code | Description | Unit | Quantity | Rate (LKR) | Amount (LKR) |
|-----------|-------------|------|----------|------------|--------------|
| 1.1       | Excavation  | m³   | 100      | 1,500      | 150,000      |

Make sure all numeric values are properly aligned and formatted with thousands separators.
Include subtotals for each section and a grand total at the end.`,
		User: `{{ .Project.Context }}

Here is the take-off data from the drawing:

{{ .TakeOff }}

Please create a complete Bill of Quantities (BOQ) with the following:
1. Item codes/references
2. Detailed descriptions
3. Units of measurement
4. Quantities (from the take-off data)
5. Estimated unit rates (in LKR - Sri Lankan Rupees)
6. Calculated amounts (quantity × rate)
7. Subtotals for each section
8. Grand total

Format it as a well-structured table that could be directly used in a professional construction document in Sri Lanka.`,
	},
	{
		Name:    "takeoff-sections",
		Version: "v1",
		Purpose: PurposeTakeOff,
		Image:   true,
		User: `Provide a comprehensive take-off of the quantities from this engineering drawing.
Analyze all visible elements, dimensions, and specifications.

Format your response as a well-structured table with pipe separators (|) like this:

| Item | Description | Unit | Quantity |
|------|-------------|------|----------|
| 1    | Walls       | m²   | 450      |

Include separate sections for different building elements (foundations, walls, floors, roofing, etc.)
Use standard units appropriate for construction in Sri Lanka.`,
	},
	{
		Name:    "boq-costed",
		Version: "v1",
		Purpose: PurposeCosting,
		System: `You are a professional quantity surveyor and cost estimator in Sri Lanka. Create a detailed Bill of Quantities (BOQ)
with realistic cost estimates for the Sri Lankan construction market. Include item codes, detailed descriptions, units, quantities, unit rates in LKR (Sri Lankan Rupees), and amounts.
Add preliminaries ({{ percent .Markup.Preliminaries }}), overhead and profit ({{ percent .Markup.OverheadProfit }}) and contingency ({{ percent .Markup.Contingency }}) as per Sri Lankan construction standards.
Structure according to CIDA (Construction Industry Development Authority) or ICTAD standards.

Format your output as a well-structured table with pipe separators for better parsing, like this:

| Item Code | Description | Unit | Quantity | Rate (LKR) | Amount (LKR) |
|-----------|-------------|------|----------|------------|--------------|
| 1.1       | Excavation  | m³   | 100      | 1,500      | 150,000      |

Make sure to include:
- Properly aligned columns
- Thousands separators in numeric values
- Subtotals for each section
- Markup calculations clearly shown
- Grand total at the end`,
		User: `Here is the take-off data from the engineering drawing:

{{ .TakeOff }}

Create a complete Bill of Quantities (BOQ) with cost estimates that includes:
1. Item codes
2. Detailed descriptions of works
3. Units of measurement
4. Quantities
5. Realistic unit rates (in LKR - Sri Lankan Rupees)
6. Calculated amounts
7. Subtotals for each section
8. Preliminaries ({{ percent .Markup.Preliminaries }})
9. Overhead and profit ({{ percent .Markup.OverheadProfit }})
10. Contingency ({{ percent .Markup.Contingency }})
11. Grand total

Format as a professional BOQ table that could be presented to clients in Sri Lanka.`,
	},
}
