package valuetype

// ParamType declares one named, typed parameter: a ValueType plus
// optional constraints used to validate a value supplied for it.
type ParamType struct {
	ID             ParamTypeID
	Name           string
	DisplayName    string
	Index          int
	ValueKind      Kind
	DefaultValue   *TypedValue
	Min            *TypedValue
	Max            *TypedValue
	AllowedValues  []TypedValue
	InputType      string
	Unit           string
	ReadOnly       bool
}

// Valid reports whether v is an admissible value for this ParamType: it
// must type-match, and if limits/allowedValues are set, lie within them.
func (p ParamType) Valid(v TypedValue) bool {
	if v.Kind != p.ValueKind {
		return false
	}
	if p.Min != nil {
		if ok, err := Compare(v, OpGreaterEqual, *p.Min); err != nil || !ok {
			return false
		}
	}
	if p.Max != nil {
		if ok, err := Compare(v, OpLessEqual, *p.Max); err != nil || !ok {
			return false
		}
	}
	if len(p.AllowedValues) > 0 {
		found := false
		for _, av := range p.AllowedValues {
			if ok, err := Compare(v, OpEqual, av); err == nil && ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ParamDescriptor filters on a named parameter: the declared param type,
// a comparison operator, and a target value.
type ParamDescriptor struct {
	ParamTypeID ParamTypeID
	Operator    Operator
	Value       TypedValue
}

// Matches reports whether the supplied value satisfies this descriptor.
func (d ParamDescriptor) Matches(v TypedValue) bool {
	ok, err := Compare(v, d.Operator, d.Value)
	return err == nil && ok
}

// Equals implements descriptor equality as required for EventDescriptor
// equality in §3: matching ids/operator and matching values.
func (d ParamDescriptor) Equals(other ParamDescriptor) bool {
	if d.ParamTypeID != other.ParamTypeID || d.Operator != other.Operator {
		return false
	}
	ok, err := Compare(d.Value, OpEqual, other.Value)
	return err == nil && ok
}

// StateDescriptor matches when a device's current state compares to a
// given value per the operator.
type StateDescriptor struct {
	StateTypeID StateTypeID
	DeviceID    DeviceID
	Operator    Operator
	Value       TypedValue
}
